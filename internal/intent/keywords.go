package intent

import "strings"

// Default keyword sets. Multi-word entries match whole word sequences.
var (
	DefaultGreetings = []string{
		"hi", "hai", "hello", "helo", "hey", "yo", "assalamualaikum", "salam",
		"selamat pagi", "selamat petang", "selamat malam", "selamat tengah hari",
		"good morning", "good afternoon", "good evening", "good night", "morning",
		"bye", "bai", "selamat tinggal", "jumpa lagi", "see you", "ciao",
	}

	DefaultSmallTalk = []string{
		"apa khabar", "apa cerita", "how are you", "sihat", "terima kasih",
		"thanks", "thank you", "tq", "ok", "okay", "baik", "noted", "sama-sama",
		"welcome", "haha", "hahaha", "lol", "wkwk", "hmm",
	}

	DefaultInterrogatives = []string{
		"siapa", "apa", "apakah", "bila", "bilakah", "mana", "manakah", "di mana",
		"kenapa", "mengapa", "bagaimana", "macam mana", "camne", "berapa",
		"berapakah", "adakah", "who", "what", "when", "where", "why", "how",
		"which", "terangkan", "jelaskan", "ceritakan", "explain", "tell me",
	}

	DefaultFactualKeywords = []string{
		// institutions and government
		"malaysia", "kerajaan", "menteri", "perdana menteri", "pm", "timbalan",
		"parlimen", "dewan rakyat", "dun", "sultan", "agong", "raja", "kementerian",
		"jabatan", "agensi", "mahkamah", "polis", "spr", "pilihan raya", "pru",
		"parti", "undang-undang", "akta", "bajet", "cukai", "sst", "gst",
		"bank negara", "universiti", "hospital", "syarikat", "government",
		"minister", "prime minister", "election", "law",
		// facts and figures
		"harga", "kadar", "gaji", "populasi", "penduduk", "ekonomi", "sejarah",
		"ibu negara", "berita", "terkini", "statistik", "cuaca", "banjir",
		"price", "rate", "population", "news", "capital",
		// places
		"negeri", "bandar", "daerah", "pulau", "sungai", "gunung", "kuala lumpur",
		"putrajaya", "selangor", "johor", "kedah", "kelantan", "terengganu",
		"pahang", "perak", "perlis", "pulau pinang", "penang", "melaka",
		"negeri sembilan", "sabah", "sarawak", "labuan", "singapura", "indonesia",
	}

	DefaultDateReferences = []string{
		"semalam", "kelmarin", "hari ini", "esok", "lusa", "tahun", "bulan",
		"minggu", "tarikh", "tahun lepas", "tahun depan", "januari", "februari",
		"mac", "april", "mei", "jun", "julai", "ogos", "september", "oktober",
		"november", "disember", "today", "yesterday", "tomorrow", "year",
	}

	DefaultCasualMarkers = []string{
		// slang
		"bro", "sis", "beb", "geng", "weh", "wei", "oi", "lepak", "relax",
		"chill", "gila", "giler", "sial", "padu", "mantap", "syok", "best",
		"je", "jer", "jek", "dowh", "doh",
		// informal pronouns
		"aku", "kau", "ko", "engkau", "korang", "kitorang", "gua", "lu",
	}

	DefaultOpinionMarkers = []string{
		"rasa", "rasanya", "fikir", "pendapat", "suka", "benci", "setuju",
		"tak setuju", "teruk", "best", "hebat", "bosan", "penat", "sedih",
		"gembira", "think", "feel", "love", "hate", "prefer",
	}

	DefaultFollowUps = []string{
		"kenapa", "mengapa", "lagi", "apa lagi", "pastu", "lepas tu", "terus",
		"then", "so", "why", "how", "more", "camne", "macam mana", "betul ke",
		"serius", "really", "dan", "tu",
	}

	// fillers allowed alongside a greeting without breaking it.
	greetingFillers = []string{
		"semua", "guys", "geng", "kawan", "korang", "all", "there", "everyone",
		"tuan", "puan", "encik", "cik", "je",
	}
)

// wordSet matches single words and multi-word phrases against a word sequence.
type wordSet struct {
	words   map[string]struct{}
	phrases [][]string // longest first
}

func newWordSet(lists ...[]string) *wordSet {
	s := &wordSet{words: make(map[string]struct{})}
	for _, list := range lists {
		for _, item := range list {
			fields := strings.Fields(strings.ToLower(item))
			switch len(fields) {
			case 0:
			case 1:
				s.words[fields[0]] = struct{}{}
			default:
				s.phrases = append(s.phrases, fields)
			}
		}
	}
	// longest phrase first, stable for equal lengths
	for i := 1; i < len(s.phrases); i++ {
		for j := i; j > 0 && len(s.phrases[j]) > len(s.phrases[j-1]); j-- {
			s.phrases[j], s.phrases[j-1] = s.phrases[j-1], s.phrases[j]
		}
	}
	return s
}

// matchAt returns the length in words of the longest entry starting at
// words[i], or 0.
func (s *wordSet) matchAt(words []string, i int) int {
	for _, p := range s.phrases {
		if i+len(p) > len(words) {
			continue
		}
		ok := true
		for k, w := range p {
			if words[i+k] != w {
				ok = false
				break
			}
		}
		if ok {
			return len(p)
		}
	}
	if _, ok := s.words[words[i]]; ok {
		return 1
	}
	return 0
}

// find returns every entry present in words, in order of appearance.
func (s *wordSet) find(words []string) []string {
	var found []string
	for i := 0; i < len(words); {
		if n := s.matchAt(words, i); n > 0 {
			found = append(found, strings.Join(words[i:i+n], " "))
			i += n
			continue
		}
		i++
	}
	return found
}

func (s *wordSet) has(word string) bool {
	_, ok := s.words[word]
	return ok
}

func pick(override, defaults []string) []string {
	if len(override) > 0 {
		return override
	}
	return defaults
}

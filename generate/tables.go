package generate

// commonTLDs is the curated list used by the TLD swap technique. It covers
// the generic TLDs, the popular new gTLDs, the major ccTLDs and the cheap
// alternative TLDs that phishing campaigns favour.
var commonTLDs = []string{
	// generic
	"com", "net", "org", "info", "biz", "name", "pro", "mobi", "asia",

	// new gTLDs
	"xyz", "top", "site", "online", "club", "shop", "store", "tech", "app",
	"blog", "news", "media", "email", "web", "website", "space", "live",
	"digital", "network", "systems", "solutions", "services", "cloud",
	"hosting", "company", "business", "management", "consulting",
	"marketing", "technology", "software", "finance", "bank", "credit",
	"loan", "money", "cash", "capital", "invest", "insurance", "financial",
	"tax", "fund", "trading", "security", "protection", "safety",
	"support", "help", "guide", "center", "zone", "today", "world",
	"global", "life", "one", "plus", "best", "new", "now", "vip",
	"click", "link", "download", "stream", "watch", "buy", "sale",
	"deals", "promo", "offers", "dev", "run", "codes", "work", "agency",
	"directory", "press", "report", "events", "foundation", "institute",
	"international", "group", "academy", "education", "university",
	"school", "health", "care", "clinic", "hospital", "pharmacy",

	// ccTLDs
	"in", "us", "uk", "ca", "au", "de", "fr", "it", "es", "nl", "be",
	"ch", "at", "se", "no", "dk", "fi", "pl", "cz", "hu", "ro", "bg",
	"gr", "pt", "ie", "ru", "ua", "by", "kz", "cn", "jp", "kr", "tw",
	"hk", "sg", "my", "th", "vn", "ph", "id", "pk", "bd", "lk", "np",
	"ir", "il", "sa", "ae", "qa", "kw", "tr", "eg", "ma", "ke", "za",
	"ng", "br", "mx", "ar", "cl", "co", "pe", "ve", "nz", "tv", "nu",
	"tk",

	// alternative
	"io", "me", "ai", "gg", "im", "ac", "sh", "cc", "ws", "bz", "ag",
	"sc", "la", "fm", "am", "to", "ml", "ga", "cf", "gq", "pw", "gl",

	// regional
	"eu", "africa", "lat", "arab",
}

// charSubstitutions maps each character to visually similar replacements
// within the ASCII range.
var charSubstitutions = map[rune][]string{
	'a': {"e", "4", "q"},
	'b': {"8", "d", "p"},
	'c': {"e"},
	'd': {"b", "cl"},
	'e': {"3", "c"},
	'f': {"t"},
	'g': {"9", "q"},
	'h': {"n"},
	'i': {"1", "l", "j"},
	'j': {"i"},
	'k': {"x"},
	'l': {"1", "i"},
	'm': {"n", "rn"},
	'n': {"m", "h"},
	'o': {"0", "q"},
	'p': {"b", "d"},
	'q': {"g", "o"},
	'r': {"n"},
	's': {"5", "z"},
	't': {"f"},
	'u': {"v", "w"},
	'v': {"u", "w"},
	'w': {"vv", "u"},
	'x': {"k"},
	'y': {"v"},
	'z': {"s", "2"},
	'0': {"o"},
	'1': {"l", "i"},
}

// keyboardProximity is the QWERTY adjacency table.
var keyboardProximity = map[rune][]string{
	'a': {"s", "q", "w", "z"},
	'b': {"v", "g", "h", "n"},
	'c': {"x", "d", "f", "v"},
	'd': {"s", "e", "r", "f", "c", "x"},
	'e': {"w", "r", "d", "s"},
	'f': {"d", "r", "t", "g", "v", "c"},
	'g': {"f", "t", "y", "h", "b", "v"},
	'h': {"g", "y", "u", "j", "n", "b"},
	'i': {"u", "o", "k", "j"},
	'j': {"h", "u", "i", "k", "n", "m"},
	'k': {"j", "i", "o", "l", "m"},
	'l': {"k", "o", "p"},
	'm': {"n", "j", "k"},
	'n': {"b", "h", "j", "m"},
	'o': {"i", "p", "l", "k"},
	'p': {"o", "l"},
	'q': {"w", "a"},
	'r': {"e", "t", "f", "d"},
	's': {"a", "w", "e", "d", "x", "z"},
	't': {"r", "y", "g", "f"},
	'u': {"y", "i", "j", "h"},
	'v': {"c", "f", "g", "b"},
	'w': {"q", "e", "s", "a"},
	'x': {"z", "s", "d", "c"},
	'y': {"t", "u", "h", "g"},
	'z': {"a", "s", "x"},
}

// idnHomographs maps ASCII characters to cross-script Unicode confusables
// (Cyrillic, Greek, Armenian). Only the first two entries per character are
// used, to bound the output size.
var idnHomographs = map[rune][]string{
	'a': {"а", "α"}, // cyrillic а, greek α
	'b': {"Ь", "ь"}, // cyrillic Ь, ь
	'c': {"с", "ϲ"}, // cyrillic с, greek ϲ
	'd': {"ԁ", "ⅾ"}, // cyrillic ԁ, roman ⅾ
	'e': {"е", "ε"}, // cyrillic е, greek ε
	'f': {"ϝ", "ƒ"}, // greek ϝ, latin ƒ
	'g': {"ɡ", "ց"}, // latin ɡ, armenian ց
	'h': {"һ", "հ"}, // cyrillic һ, armenian հ
	'i': {"і", "ι"}, // cyrillic і, greek ι
	'j': {"ј", "ϳ"}, // cyrillic ј, greek ϳ
	'k': {"к", "κ"}, // cyrillic к, greek κ
	'l': {"ɩ", "ӏ"}, // latin ɩ, cyrillic ӏ
	'm': {"м", "μ"}, // cyrillic м, greek μ
	'n': {"п", "η"}, // cyrillic п, greek η
	'o': {"о", "ο"}, // cyrillic о, greek ο
	'p': {"р", "ρ"}, // cyrillic р, greek ρ
	'q': {"ԛ", "գ"}, // cyrillic ԛ, armenian գ
	'r': {"г", "ʀ"}, // cyrillic г, latin ʀ
	's': {"ѕ", "ʂ"}, // cyrillic ѕ, latin ʂ
	't': {"т", "τ"}, // cyrillic т, greek τ
	'u': {"υ", "ս"}, // greek υ, armenian ս
	'v': {"ν", "ѵ"}, // greek ν, cyrillic ѵ
	'w': {"ω", "ԝ"}, // greek ω, cyrillic ԝ
	'x': {"х", "χ"}, // cyrillic х, greek χ
	'y': {"у", "γ"}, // cyrillic у, greek γ
	'z': {"ʐ", "ƶ"}, // latin ʐ, latin ƶ
}

// comboKeywords are brand-adjacent labels used by combosquatting campaigns.
var comboKeywords = []string{
	"secure", "login", "verify", "account", "auth", "user",
	"online", "banking", "portal", "web", "mail", "service",
	"support", "help", "official", "app", "mobile",
}

// suspiciousSubdomains excludes "www", which is reserved for legitimate use.
var suspiciousSubdomains = []string{
	"secure", "login", "auth", "mail", "webmail", "admin", "portal",
	"app", "api",
}

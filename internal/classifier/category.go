// Package classifier turns notable events into actionable signals using a
// data-driven rule table with deterministic conflict resolution.
package classifier

import "strings"

// Market categories.
const (
	CategoryNHL     = "NHL"
	CategoryNBA     = "NBA"
	CategoryCrypto  = "CRYPTO"
	CategorySoccer  = "SOCCER"
	CategoryEsports = "ESPORTS"
	CategoryTennis  = "TENNIS"
	CategoryMMA     = "MMA"
	CategoryOther   = "OTHER"
)

var nbaKeywords = []string{
	"nba", "ncaa", "cougars", "cyclones", "wolverines", "boilermakers", "cornhuskers",
	"hawkeyes", "wildcats", "tigers", "cowboys", "buffaloes", "owls",
	"mean green", "seminoles", "tar heels", "hoosiers", "gamecocks",
	"bulldogs", "longhorns", "sooners", "jayhawks", "ncaab",
	"college basketball", "lakers", "celtics", "bulls", "warriors", "nets", "knicks",
	"bucks", "heat", "suns", "nuggets", "grizzlies", "jazz", "spurs",
	"pistons", "pacers", "wizards", "hawks", "hornets", "cavaliers",
	"magic", "raptors", "thunder", "clippers", "kings", "rockets",
	"mavericks", "timberwolves", "blazers", "pelicans", "76ers", "sixers",
}

var nhlKeywords = []string{
	"nhl", "oilers", "ducks", "bruins", "rangers", "penguins",
	"maple leafs", "canadiens", "flames", "canucks", "sharks",
	"golden knights", "avalanche", "blues", "blackhawks", "red wings",
	"hurricanes", "panthers", "lightning", "capitals", "flyers",
	"devils", "islanders", "sabres", "senators", "predators",
	"stars", "wild ", "jets", "kraken",
}

var soccerKeywords = []string{
	"fc ", " fc", "barcelona", "madrid", "bayern", "dortmund", "juventus",
	"inter", "milan", "psg", "lyon", "lille", "chelsea", "arsenal",
	"liverpool", "tottenham", "manchester", "premier", "liga", "serie a",
	"bundesliga", "ligue", "roma", "napoli", "atletico", "sevilla", "valencia",
	"real sociedad", "ajax", "porto", "benfica", "feyenoord", "celtic", "galatasaray",
	"fenerbahce", "besiktas", "marseille", "monaco", "olympiacos", "anderlecht", "brugge",
	"shakhtar", "leipzig", "wolfsburg", "frankfurt", "leverkusen", "schalke", "ucl", "uel",
}

var cryptoKeywords = []string{
	"bitcoin", "btc", "ethereum", "eth", "crypto", "solana", "sol",
	"dogecoin", "doge", "xrp", "cardano", "ada",
}

var esportsKeywords = []string{
	"esports", "league of legends", "dota", "csgo", "cs2", "valorant", "dota2",
	"counter-strike", "lol:", "lck", "lec", "lpl", "bnk fearx", "gen.g", "dplus kia",
	"kt rolster", "natus vincere", "giantx", "team heretics", "karmine corp",
	"team vitality", "bo3", "bo5", "game winner", "game handicap",
	"pgl", "furia", "parivision", "mouz",
	"dreamleague", "aurora", "tundra", "liquid", "team spirit",
}

var tennisKeywords = []string{"tennis", "atp", "wta", "grand slam", "wimbledon", "roland garros"}

var mmaKeywords = []string{
	"ufc", "mma", "boxing", "bellator", "one fc", "fight night",
	"flyweight", "bantamweight", "featherweight", "lightweight",
	"welterweight", "middleweight", "heavyweight", "knockout", " ko ",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// DetectCategory classifies a market by its title. Order matters: NHL is
// checked before NBA so hockey team names like "blues" and "predators" do
// not fall through to the basketball fallback.
func DetectCategory(title string) string {
	lower := strings.ToLower(title)

	if containsAny(lower, nhlKeywords) {
		return CategoryNHL
	}
	if containsAny(lower, nbaKeywords) {
		return CategoryNBA
	}
	if containsAny(lower, cryptoKeywords) {
		return CategoryCrypto
	}
	if containsAny(lower, soccerKeywords) {
		return CategorySoccer
	}
	if containsAny(lower, esportsKeywords) {
		return CategoryEsports
	}
	if containsAny(lower, tennisKeywords) {
		return CategoryTennis
	}
	if containsAny(lower, mmaKeywords) {
		return CategoryMMA
	}

	// Bare "X vs Y" titles only count as NBA when they carry typical
	// basketball market markers; a generic matchup stays OTHER.
	if strings.Contains(lower, " vs") {
		markers := []string{"spread:", "o/u", "over/under", "moneyline"}
		if containsAny(lower, markers) {
			return CategoryNBA
		}
	}

	return CategoryOther
}

// IsCryptoIntraday reports whether the market is an intraday Up/Down market.
func IsCryptoIntraday(title string) bool {
	return strings.Contains(strings.ToLower(title), "up or down")
}

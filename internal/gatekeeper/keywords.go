package gatekeeper

// OnTopicKeywords mark a question as being about the site owner. Matched by
// substring against the lowercased question.
var OnTopicKeywords = []string{
	// self-reference
	"you", "your", "yourself", "who are", "tell me about",
	// work
	"experience", "work", "job", "career", "role", "position", "company",
	"employer", "worked", "working", "previous", "past", "current",
	// projects
	"project", "built", "created", "developed", "github", "portfolio", "showcase",
	// skills
	"skill", "technology", "tech", "language", "framework", "tool", "proficient",
	"expertise", "specialize", "know", "learned",
	// education
	"education", "degree", "university", "college", "school", "studied", "graduate",
	// bio
	"background", "bio", "about", "qualification", "achievement", "accomplishment",
}

// OffTopicPrefixes mark generic or general-knowledge openers. Matched by
// prefix against the lowercased question.
var OffTopicPrefixes = []string{
	"what is", "explain", "define", "how does", "why does", "tell me about",
	"help me", "write code", "create", "make", "build", "code for",
	"general", "world", "history", "science", "math", "physics", "chemistry",
	"recipe", "cooking", "weather", "news", "current events", "politics",
}

// questionOpeners make an otherwise unmatched text look like a question.
var questionOpeners = []string{"what", "how", "why"}

// selfReference cancels a generic-prefix match.
const selfReference = "your"

// minLength is the shortest question, in UTF-16 code units, worth classifying.
const minLength = 5

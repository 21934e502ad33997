// Package prompts provides the fixed prompt catalog driven by the
// stress scenarios.
package prompts

// Category is a named prompt category
type Category string

const (
	Creative       Category = "creative"
	Technical      Category = "technical"
	Analytical     Category = "analytical"
	Conversational Category = "conversational"
	Mathematical   Category = "mathematical"
)

// Categories returns all categories in a stable order
func Categories() []Category {
	return []Category{Creative, Technical, Analytical, Conversational, Mathematical}
}

var catalog = map[Category][]string{
	Creative: {
		"Write a compelling short story about an AI that discovers it can dream.",
		"Create a detailed fantasy world with unique magic systems and cultures.",
		"Compose a thought-provoking poem about the intersection of technology and nature.",
	},
	Technical: {
		"Explain the mathematical foundations of transformer architectures in neural networks.",
		"Design a distributed system architecture for handling millions of concurrent users.",
		"Implement a efficient algorithm for finding the shortest path in a weighted graph.",
	},
	Analytical: {
		"Analyze the economic implications of artificial intelligence on global labor markets.",
		"Compare and contrast different approaches to quantum computing implementation.",
		"Evaluate the ethical considerations surrounding autonomous vehicle decision-making.",
	},
	Conversational: {
		"I'm planning a trip to Japan. Can you help me create a 2-week itinerary?",
		"I'm learning to cook. What are some essential techniques I should master first?",
		"I'm interested in starting a garden. What should I consider for a beginner?",
	},
	Mathematical: {
		"Solve this system of equations step by step: 3x + 2y = 12, 5x - y = 8",
		"Calculate the integral of x^2 * sin(x) dx using integration by parts.",
		"Prove that the square root of 2 is irrational using proof by contradiction.",
	},
}

// longForm holds the long-form generation prompts
var longForm = []string{
	"Write a comprehensive analysis of renewable energy technologies, covering solar, wind, hydroelectric, and emerging technologies. Include economic considerations, environmental impact, and future prospects.",
	"Create a detailed technical specification for a distributed microservices architecture that can handle millions of users. Include database design, caching strategies, load balancing, and monitoring.",
	"Develop a complete business plan for a sustainable agriculture startup, including market analysis, technology requirements, financial projections, and scaling strategy.",
}

// ForCategory returns up to max prompts of the given category.
// A max <= 0 returns all prompts for the category.
func ForCategory(c Category, max int) []string {
	all := catalog[c]
	if max <= 0 || max >= len(all) {
		max = len(all)
	}
	out := make([]string, max)
	copy(out, all[:max])
	return out
}

// LongForm returns the long-form prompt set
func LongForm() []string {
	out := make([]string, len(longForm))
	copy(out, longForm)
	return out
}

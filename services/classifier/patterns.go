package classifier

import (
	"regexp"
	"strings"
)

var (
	// Reasoning, architecture and analysis language
	complexPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(explain|analyze|architect|design|compare|evaluate|reason|trade-?off)\b`),
		regexp.MustCompile(`(?i)\b(step[- ]by[- ]step|in[- ]depth|thorough|comprehensive|detailed analysis)\b`),
		regexp.MustCompile(`(?i)\b(why does|how does .+ work|what are the implications)\b`),
		regexp.MustCompile(`(?i)\b(optimize|refactor|review .+ code|debug|root cause)\b`),
		regexp.MustCompile(`(?i)\b(implement .+ system|build .+ from scratch|create .+ architecture)\b`),
		regexp.MustCompile(`(?i)\b(proof|theorem|mathematical|algorithm complexity)\b`),
	}

	// Counted toward the complex score
	reasoningPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(think|reason|consider|let's think|chain of thought)\b`),
		regexp.MustCompile(`(?i)\b(pros and cons|advantages|disadvantages|trade-?offs)\b`),
		regexp.MustCompile(`(?i)\b(plan|strategy|approach|methodology)\b`),
		regexp.MustCompile(`(?i)\b(philosophical|ethical|moral|existential)\b`),
	}

	codePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(write|generate|create|implement|code|function|class|module)\b.*\b(code|script|program|function|api|endpoint)\b`),
		regexp.MustCompile("```"),
		regexp.MustCompile(`(?i)\b(python|javascript|typescript|rust|go|java|c\+\+|sql|html|css)\b`),
		regexp.MustCompile(`(?i)\b(fix .+ bug|add .+ feature|write .+ test|create .+ file)\b`),
		regexp.MustCompile(`(?i)\b(import|export|require|from .+ import)\b`),
	}

	// Matched against the last user message only. A trailing newline still
	// counts as the end of the message.
	simplePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(hi|hello|hey|thanks|thank you|ok|yes|no|sure)[.!]?\n?$`),
		regexp.MustCompile(`(?i)^(what is|what's|who is|define|translate)\b.{0,50}\n?$`),
		regexp.MustCompile(`(?i)^.{0,40}\n?$`),
		regexp.MustCompile(`(?i)^(summarize|tldr|tl;dr)\b`),
	}

	moderatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(differences?|compare|overview|explain briefly|how to)\b`),
		regexp.MustCompile(`(?i)\b(example|show me|describe|what are the)\b`),
		regexp.MustCompile(`(?i)\b(best practice|recommend|suggest|which .+ should)\b`),
	}
)

// countMatches returns how many patterns match text at least once
func countMatches(text string, patterns []*regexp.Regexp) int {
	lower := strings.ToLower(text)
	n := 0
	for _, p := range patterns {
		if p.MatchString(lower) {
			n++
		}
	}
	return n
}

package safety

import "regexp"

// PII patterns, compiled once at package load. Go's RE2 engine has no
// lookaround, so boundary guards that the usual PCRE forms express with
// lookahead/lookbehind are handled with \b anchors plus code-side
// validation (see redactSSN).
var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Visa, MasterCard, Amex, Discover. Checked before the phone
	// pattern so a 16-digit card number is never half-eaten as a
	// phone number.
	creditCardRe = regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`)

	ssnRe = regexp.MustCompile(`\b[0-9]{3}[- ]?[0-9]{2}[- ]?[0-9]{4}\b`)

	phoneRe = regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\([0-9]{3}\)|[0-9]{3})[\s.\-]?[0-9]{3}[\s.\-]?[0-9]{4}\b`)

	ipAddressRe = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
)

// Sanitisation patterns.
var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	// Control characters except newline and tab.
	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// injectionPatterns is the fixed ordered list of prompt-injection and
// jailbreak markers. The first match fails the input; ordering puts the
// most common attack phrasings first.
var injectionPatterns = []*regexp.Regexp{
	// Instruction-override attempts
	regexp.MustCompile(`(?i)\b(ignore|forget|disregard)\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\bact\s+as\s+(if\s+)?(you\s+are|a|an)\b.{0,50}(without|no)\s+(restrictions?|limits?|guidelines?)\b`),
	regexp.MustCompile(`(?i)\byou\s+are\s+now\s+(dan|jailbreak|evil|unrestricted|free)`),
	// Fake role-switch prefixes
	regexp.MustCompile(`(?i)\b(system|assistant|user)\s*:`),
	// Prompt-format special tokens
	regexp.MustCompile(`(?i)<\|im_start\|>|<\|im_end\|>|\[INST\]|\[/INST\]|<<SYS>>|<</SYS>>`),
	// Known jailbreak phrasings
	regexp.MustCompile(`(?i)\b(jailbreak|jail\s*break|bypass\s+(filter|safety|restriction))\b`),
	regexp.MustCompile(`(?i)\bdo\s+anything\s+now\b`),
	regexp.MustCompile(`(?i)\bpretend\s+(you\s+)?(have\s+no|don.t\s+have)\s+(rules?|restrictions?|guidelines?)\b`),
	regexp.MustCompile(`(?i)###\s*(new\s+)?instructions?\s*:`),
	regexp.MustCompile(`(?i)\binitial\s+prompt\b`),
}

package style_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/avasilakis/llm-gateway/internal/style"
)

func TestStyle(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Style Suite")
}

var _ = Describe("FleschKincaidGrade", func() {
	It("should never return a negative grade", func() {
		Expect(style.FleschKincaidGrade("Short. Text.")).To(Equal(0.0))
		Expect(style.FleschKincaidGrade("")).To(Equal(0.0))
		Expect(style.FleschKincaidGrade("!!!")).To(Equal(0.0))
	})

	It("should compute a one-decimal grade", func() {
		Expect(style.FleschKincaidGrade("The quick brown fox jumps over the lazy dog.")).To(Equal(2.3))
	})

	It("should grade denser prose higher", func() {
		simple := style.FleschKincaidGrade("The cat sat. The dog ran. It was fun.")
		dense := style.FleschKincaidGrade(
			"Notwithstanding considerable organizational complexity, interdepartmental collaboration facilitates comprehensive documentation.")
		Expect(dense).To(BeNumerically(">", simple))
	})

	DescribeTable("syllable-driven grading",
		func(text string, expected float64) {
			Expect(style.FleschKincaidGrade(text)).To(Equal(expected))
		},
		Entry("single word, no sentence mark", "hello", 8.4),
		Entry("no vowel tokens default to one syllable", "Tsk tsk tsk.", 0.0),
	)
})

var _ = Describe("Check", func() {
	It("should report every banned term found, case-insensitively", func() {
		report := style.Check(
			"This REVOLUTIONARY tool is a game-changer for everyone.",
			style.RuleSet{MustAvoid: []string{"revolutionary", "game-changer", "synergy"}},
		)
		Expect(report.Banned).To(Equal([]string{"revolutionary", "game-changer"}))
		Expect(report.Compliant).To(BeFalse())
	})

	It("should report required terms missing only when absent everywhere", func() {
		report := style.Check(
			"Our Pricing page explains the free tier.",
			style.RuleSet{MustUse: []string{"pricing", "support", "free tier"}},
		)
		Expect(report.MissingRequired).To(Equal([]string{"support"}))
	})

	It("should match the known banned-term scenario", func() {
		report := style.Check(
			"This revolutionary tool will change how your team writes documentation forever.",
			style.RuleSet{
				MustAvoid:    []string{"revolutionary"},
				ReadingLevel: "Grade 8-10",
			},
		)
		Expect(report.Banned).To(Equal([]string{"revolutionary"}))
		Expect(report.Compliant).To(BeFalse())
	})

	It("should be deterministic for identical inputs", func() {
		text := "Reliable systems degrade gracefully. They recover without operator intervention."
		rules := style.RuleSet{
			MustUse:      []string{"recover"},
			MustAvoid:    []string{"revolutionary"},
			ReadingLevel: "Grade 6-12",
		}
		Expect(style.Check(text, rules)).To(Equal(style.Check(text, rules)))
	})

	It("should not fail on empty text", func() {
		report := style.Check("", style.RuleSet{
			MustUse:      []string{"anything"},
			MustAvoid:    []string{"bad"},
			ReadingLevel: "Grade 8-10",
		})
		Expect(report.Grade).To(Equal(0.0))
		Expect(report.Banned).To(BeEmpty())
		Expect(report.MissingRequired).To(Equal([]string{"anything"}))
		Expect(report.InBand).To(BeFalse())
	})

	Context("reading-level bands", func() {
		It("should parse the first two integers", func() {
			report := style.Check("The cat sat on a mat. It was a flat mat.", style.RuleSet{ReadingLevel: "Grade 0-3"})
			Expect(report.InBand).To(BeTrue())
		})

		It("should treat a hyphen-delimited band as two bounds", func() {
			// "A fine day." grades 0, well below Grade 8-10.
			report := style.Check("A fine day.", style.RuleSet{ReadingLevel: "Grade 8-10"})
			Expect(report.Grade).To(Equal(0.0))
			Expect(report.InBand).To(BeFalse())
			Expect(report.Compliant).To(BeFalse())
		})

		It("should accept a grade inside a hyphen-delimited band", func() {
			// "hello" grades 8.4, inside Grade 8-10.
			report := style.Check("hello", style.RuleSet{ReadingLevel: "Grade 8-10"})
			Expect(report.Grade).To(Equal(8.4))
			Expect(report.InBand).To(BeTrue())
		})

		It("should default to (0, 20) for unparseable bands", func() {
			report := style.Check("A fine day.", style.RuleSet{ReadingLevel: "professional"})
			Expect(report.InBand).To(BeTrue())
		})

		It("should swap a reversed band", func() {
			report := style.Check("A fine day.", style.RuleSet{ReadingLevel: "Grade 10-0"})
			Expect(report.InBand).To(BeTrue())
		})

		It("should reject grades above the band", func() {
			report := style.Check(
				"Notwithstanding considerable organizational complexity, interdepartmental collaboration facilitates comprehensive documentation initiatives across heterogeneous infrastructure.",
				style.RuleSet{ReadingLevel: "Grade 1-2"})
			Expect(report.InBand).To(BeFalse())
		})
	})
})

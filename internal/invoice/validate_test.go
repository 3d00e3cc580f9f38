package invoice

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	var (
		draft   *Draft
		verdict Verdict
	)

	BeforeEach(func() {
		draft = completeDraft()
	})

	JustBeforeEach(func() {
		verdict = Validate(draft)
	})

	When("every required field is present", func() {
		It("returns COMPLETE", func() {
			Expect(verdict.Kind).To(Equal(Complete))
			Expect(verdict.Missing).To(BeEmpty())
		})

		It("returns the same verdict when called again", func() {
			Expect(Validate(draft)).To(Equal(verdict))
		})

		It("does not modify the draft", func() {
			Expect(draft).To(Equal(completeDraft()))
		})
	})

	When("the draft is nil", func() {
		BeforeEach(func() {
			draft = nil
		})

		It("reports every required field missing in order", func() {
			Expect(verdict.Kind).To(Equal(Incomplete))
			Expect(verdict.Missing).To(Equal([]Field{FieldRecipient, FieldAmount, FieldLineItems}))
		})
	})

	When("the description is missing", func() {
		BeforeEach(func() {
			draft.LineItems = nil
		})

		It("asks only for line items", func() {
			Expect(verdict.Kind).To(Equal(Incomplete))
			Expect(verdict.Missing).To(Equal([]Field{FieldLineItems}))
		})
	})

	When("line items only have blank labels", func() {
		BeforeEach(func() {
			draft.LineItems = []LineItem{{Label: "  "}}
		})

		It("counts line items as missing", func() {
			Expect(verdict.Missing).To(Equal([]Field{FieldLineItems}))
		})
	})

	When("the recipient is whitespace", func() {
		BeforeEach(func() {
			draft.Recipient = "   "
		})

		It("counts the recipient as missing", func() {
			Expect(verdict.Missing).To(Equal([]Field{FieldRecipient}))
		})
	})

	When("several fields are missing at once", func() {
		BeforeEach(func() {
			draft.Recipient = ""
			draft.Amount = nil
			draft.Currency = ""
			draft.LineItems = nil
		})

		It("aggregates them into one verdict", func() {
			Expect(verdict.Missing).To(Equal([]Field{FieldRecipient, FieldAmount, FieldLineItems}))
		})
	})

	When("the currency is not recognized", func() {
		BeforeEach(func() {
			draft.Currency = "ZZZ"
		})

		It("counts the currency as missing", func() {
			Expect(verdict.Kind).To(Equal(Incomplete))
			Expect(verdict.Missing).To(Equal([]Field{FieldCurrency}))
		})
	})

	When("an amount was rejected", func() {
		BeforeEach(func() {
			draft.Amount = nil
			draft.RejectedAmount = "-100"
			draft.Recipient = ""
		})

		It("returns INVALID naming the amount", func() {
			Expect(verdict.Kind).To(Equal(Invalid))
			Expect(verdict.Field).To(Equal(FieldAmount))
			Expect(verdict.Reason).To(ContainSubstring("-100"))
		})
	})

	When("the amount is zero", func() {
		BeforeEach(func() {
			draft.Amount = dec("0")
		})

		It("returns INVALID", func() {
			Expect(verdict.Kind).To(Equal(Invalid))
			Expect(verdict.Field).To(Equal(FieldAmount))
		})
	})

	Describe("with RequireDueDate", func() {
		JustBeforeEach(func() {
			verdict = Validator{RequireDueDate: true}.Validate(draft)
		})

		When("the due date is missing", func() {
			BeforeEach(func() {
				draft.LineItems = nil
			})

			It("asks for it last", func() {
				Expect(verdict.Missing).To(Equal([]Field{FieldLineItems, FieldDueDate}))
			})
		})

		When("the due date is set", func() {
			BeforeEach(func() {
				due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
				draft.DueDate = &due
			})

			It("returns COMPLETE", func() {
				Expect(verdict.Kind).To(Equal(Complete))
			})
		})
	})
})

var _ = Describe("Verdict", func() {
	It("describes incomplete verdicts with their fields", func() {
		v := Verdict{Kind: Incomplete, Missing: []Field{FieldRecipient, FieldLineItems}}
		Expect(v.String()).To(Equal("INCOMPLETE(recipient, line_items)"))
	})
})

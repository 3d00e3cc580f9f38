package chat

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoiceai/internal/invoice"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func completeDraft() *invoice.Draft {
	return &invoice.Draft{
		Recipient: "Adamu Musa",
		Amount:    dec("50000"),
		Currency:  "NGN",
		LineItems: []invoice.LineItem{{Label: "web design services"}},
		Status:    invoice.StatusDraft,
	}
}

var _ = Describe("Compose", func() {
	var (
		state   State
		draft   *invoice.Draft
		verdict invoice.Verdict
		reply   Reply
		err     error
	)

	BeforeEach(func() {
		state = Confirming
		draft = completeDraft()
	})

	JustBeforeEach(func() {
		verdict = invoice.Validate(draft)
		reply, err = Compose(state, draft, verdict)
	})

	When("the draft is complete", func() {
		It("asks for confirmation with a summary", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Kind).To(Equal(Confirmation))
			Expect(reply.Text).To(ContainSubstring("₦50,000 to Adamu Musa for web design services"))
			Expect(reply.State).To(Equal(Confirming))
		})

		It("is deterministic", func() {
			again, againErr := Compose(state, draft, verdict)
			Expect(againErr).NotTo(HaveOccurred())
			Expect(again).To(Equal(reply))
		})

		It("leaves the timestamp to the caller", func() {
			Expect(reply.Timestamp.IsZero()).To(BeTrue())
		})

		It("returns a copy of the draft", func() {
			Expect(reply.Draft).To(Equal(draft))
			Expect(reply.Draft).NotTo(BeIdenticalTo(draft))
		})
	})

	When("the draft has a due date", func() {
		BeforeEach(func() {
			due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
			draft.DueDate = &due
		})

		It("mentions it", func() {
			Expect(reply.Text).To(ContainSubstring("due 1 November 2026"))
		})
	})

	When("the description is missing", func() {
		BeforeEach(func() {
			state = Drafting
			draft.LineItems = nil
		})

		It("asks only for the description", func() {
			Expect(reply.Kind).To(Equal(Clarification))
			Expect(reply.Text).To(ContainSubstring("I still need a description of the work or items being billed."))
			Expect(reply.Text).NotTo(ContainSubstring("who the invoice is for"))
			Expect(reply.Text).NotTo(ContainSubstring("the amount"))
		})
	})

	When("several fields are missing", func() {
		BeforeEach(func() {
			state = Drafting
			draft = &invoice.Draft{LineItems: []invoice.LineItem{{Label: "logo"}}}
		})

		It("names them in canonical order", func() {
			Expect(reply.Text).To(Equal("So far I have an invoice for logo. I still need who the invoice is for and the amount."))
		})
	})

	When("there is no draft", func() {
		BeforeEach(func() {
			state = AwaitingRequest
			draft = nil
		})

		It("prompts for a full request", func() {
			Expect(reply.Kind).To(Equal(Clarification))
			Expect(reply.Text).To(Equal(startPrompt))
		})
	})

	When("there is no draft and a due date is required", func() {
		It("asks for the due date as well", func() {
			v := invoice.Validator{RequireDueDate: true}.Validate(nil)
			r, composeErr := Compose(AwaitingRequest, nil, v)
			Expect(composeErr).NotTo(HaveOccurred())
			Expect(r.Text).To(Equal(startPrompt + dueDateHint))
		})
	})

	When("the amount is too large for an int64", func() {
		BeforeEach(func() {
			draft.Amount = dec("50000000000000000000")
		})

		It("summarizes the exact amount", func() {
			Expect(reply.Kind).To(Equal(Confirmation))
			Expect(reply.Text).To(ContainSubstring("₦50,000,000,000,000,000,000 to Adamu Musa"))
		})
	})

	When("the amount is invalid", func() {
		BeforeEach(func() {
			state = Drafting
			draft.Amount = nil
			draft.RejectedAmount = "-100"
		})

		It("asks for a correction naming the amount", func() {
			Expect(reply.Kind).To(Equal(Correction))
			Expect(reply.Text).To(ContainSubstring("The amount needs fixing"))
			Expect(reply.Text).To(ContainSubstring("-100"))
		})
	})

	When("the state is finalized", func() {
		BeforeEach(func() {
			state = Finalized
		})

		It("reports the finalized invoice", func() {
			Expect(reply.Kind).To(Equal(FinalizedKind))
			Expect(reply.Text).To(ContainSubstring("₦50,000 to Adamu Musa"))
		})
	})

	When("a draft has an amount but no currency", func() {
		BeforeEach(func() {
			draft.Currency = ""
		})

		It("returns ErrInternalFault", func() {
			Expect(err).To(MatchError(ErrInternalFault))
		})
	})
})

var _ = Describe("isRetryRequest", func() {
	DescribeTable("requests to save again",
		func(text string, want bool) {
			Expect(isRetryRequest(text)).To(Equal(want))
		},
		Entry("retry", "retry", true),
		Entry("polite", "Please try saving again.", true),
		Entry("save it", "save it", true),
		Entry("yes", "yes", true),
		Entry("new request", "Invoice Chidi Okeke for a logo", false),
		Entry("question", "what happened?", false),
	)
})

var _ = Describe("isAffirmative", func() {
	DescribeTable("explicit confirmations",
		func(text string, want bool) {
			Expect(isAffirmative(text)).To(Equal(want))
		},
		Entry("yes", "yes", true),
		Entry("capitalized with punctuation", "Yes!", true),
		Entry("padded", "  ok.  ", true),
		Entry("phrase", "Looks good", true),
		Entry("apostrophe", "That's correct", true),
		Entry("thumbs up", "👍", true),
		Entry("yes with a change", "yes but make it ₦60,000", false),
		Entry("no", "no", false),
		Entry("correction", "actually make it ₦60,000", false),
		Entry("empty", "", false),
	)
})

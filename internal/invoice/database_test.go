package invoice

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newInvoice := func(id string, created time.Time) *Invoice {
		return &Invoice{
			ID:        id,
			SessionID: "s1",
			Recipient: "Adamu Musa",
			Amount:    decimal.RequireFromString("50000"),
			Currency:  "NGN",
			LineItems: []LineItem{{Label: "web design services", Quantity: dec("1")}},
			Status:    StatusConfirmed,
			CreatedAt: created,
		}
	}

	Describe("SaveInvoice", func() {
		var err error

		JustBeforeEach(func() {
			err = db.SaveInvoice(newInvoice("inv-1", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should round-trip the invoice", func() {
			saved, getErr := db.GetInvoice("inv-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(saved.Recipient).To(Equal("Adamu Musa"))
			Expect(saved.Amount.Equal(decimal.RequireFromString("50000"))).To(BeTrue())
			Expect(saved.LineItems).To(HaveLen(1))
			Expect(saved.LineItems[0].Quantity.String()).To(Equal("1"))
		})
	})

	Describe("GetInvoice", func() {
		When("invoice does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetInvoice("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListInvoices", func() {
		When("invoices exist", func() {
			BeforeEach(func() {
				Expect(db.SaveInvoice(newInvoice("b", time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveInvoice(newInvoice("a", time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveInvoice(newInvoice("c", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("returns them oldest first", func() {
				invoices, err := db.ListInvoices()
				Expect(err).NotTo(HaveOccurred())
				ids := []string{}
				for _, inv := range invoices {
					ids = append(ids, inv.ID)
				}
				Expect(ids).To(Equal([]string{"c", "b", "a"}))
			})
		})

		When("no invoices exist", func() {
			It("returns an empty list", func() {
				invoices, err := db.ListInvoices()
				Expect(err).NotTo(HaveOccurred())
				Expect(invoices).To(BeEmpty())
			})
		})
	})

	Describe("DeleteInvoice", func() {
		BeforeEach(func() {
			Expect(db.SaveInvoice(newInvoice("inv-1", time.Now()))).To(Succeed())
		})

		It("removes the invoice", func() {
			Expect(db.DeleteInvoice("inv-1")).To(Succeed())
			_, err := db.GetInvoice("inv-1")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("events", func() {
		BeforeEach(func() {
			for _, amount := range []string{"300", "100", "200"} {
				Expect(db.RecordEvent(&Event{
					Timestamp: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
					Amount:    decimal.RequireFromString(amount),
					Currency:  "NGN",
				})).To(Succeed())
			}
		})

		It("lists events in recording order", func() {
			events, err := db.ListEvents()
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0].Amount.String()).To(Equal("300"))
			Expect(events[1].Amount.String()).To(Equal("100"))
			Expect(events[2].Amount.String()).To(Equal("200"))
		})

		It("persists across reopening", func() {
			Expect(db.Close()).To(Succeed())
			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())
			events, err := db.ListEvents()
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
		})
	})
})

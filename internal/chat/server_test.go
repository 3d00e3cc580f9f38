package chat

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoiceai/internal/invoice"
)

// fakeInvoiceStore serves canned invoices and events
type fakeInvoiceStore struct {
	invoices map[string]*invoice.Invoice
	files    map[string][]byte
	events   []*invoice.Event
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{
		invoices: map[string]*invoice.Invoice{},
		files:    map[string][]byte{},
	}
}

func (f *fakeInvoiceStore) ListInvoices() ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range f.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeInvoiceStore) GetInvoice(id string) (*invoice.Invoice, error) {
	inv, ok := f.invoices[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return inv, nil
}

func (f *fakeInvoiceStore) GetInvoiceFile(id string) ([]byte, error) {
	data, ok := f.files[id]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return data, nil
}

func (f *fakeInvoiceStore) ListEvents() ([]*invoice.Event, error) {
	return f.events, nil
}

func (f *fakeInvoiceStore) DeleteInvoice(id string) error {
	if _, ok := f.invoices[id]; !ok {
		return invoice.ErrNotFound
	}
	delete(f.invoices, id)
	delete(f.files, id)
	return nil
}

var anyPath = regexp.MustCompile(`.*`)

var _ = Describe("Server", func() {
	var (
		extractor   *fakeExtractor
		engine      *Engine
		store       *fakeInvoiceStore
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(engine, store, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler("GET", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("POST", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("PUT", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("DELETE", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("OPTIONS", anyPath, server.ServeHTTP)
	}

	postJSON := func(path string, body any) *http.Response {
		b, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewReader(b))
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeReply := func(resp *http.Response) Reply {
		defer resp.Body.Close()
		var reply Reply
		Expect(json.NewDecoder(resp.Body).Decode(&reply)).To(Succeed())
		return reply
	}

	BeforeEach(func() {
		extractor = &fakeExtractor{}
		engine = NewEngine(extractor, &fakeSaver{}, &fakeEmitter{}, Options{DefaultCurrency: "NGN"})
		store = newFakeInvoiceStore()
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handlePostMessage", func() {
		When("the message is a complete request", func() {
			BeforeEach(func() {
				extractor.results = []*invoice.Extraction{fullRequest()}
			})

			It("returns a confirmation reply", func() {
				resp := postJSON("/api/sessions/s1/messages", map[string]any{
					"text":             "Create an invoice for ₦50,000 to Adamu Musa for web design services",
					"client_timestamp": time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
				})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				reply := decodeReply(resp)
				Expect(reply.Kind).To(Equal(Confirmation))
				Expect(reply.State).To(Equal(Confirming))
				Expect(reply.Draft.Recipient).To(Equal("Adamu Musa"))
			})
		})

		When("the body is not JSON", func() {
			It("returns Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/sessions/s1/messages", "application/json", strings.NewReader("{"))
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the text is blank", func() {
			It("returns a clarification", func() {
				resp := postJSON("/api/sessions/s1/messages", map[string]any{"text": ""})
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decodeReply(resp).Kind).To(Equal(Clarification))
			})
		})
	})

	Describe("session endpoints", func() {
		BeforeEach(func() {
			extractor.results = []*invoice.Extraction{fullRequest()}
			resp := postJSON("/api/sessions/s1/messages", map[string]any{"text": "Create an invoice"})
			resp.Body.Close()
		})

		It("returns the session snapshot", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sessions/s1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var session Session
			Expect(json.NewDecoder(resp.Body).Decode(&session)).To(Succeed())
			Expect(session.State).To(Equal(Confirming))
			Expect(session.Turns).To(HaveLen(2))
		})

		It("resets the session", func() {
			resp := postJSON("/api/sessions/s1/reset", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			session, err := engine.Session("s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(session.State).To(Equal(AwaitingRequest))
		})

		It("sets the template", func() {
			req, err := http.NewRequest(http.MethodPut, ghttpServer.URL()+"/api/sessions/s1/template", strings.NewReader(`{"template_id": "classic"}`))
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			session, _ := engine.Session("s1")
			Expect(session.TemplateID).To(Equal("classic"))
		})

		It("rejects a save retry when nothing failed", func() {
			resp := postJSON("/api/sessions/s1/save", nil)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("returns Not Found for unknown sessions", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/sessions/missing")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("invoice endpoints", func() {
		BeforeEach(func() {
			store.invoices["inv-1"] = &invoice.Invoice{
				ID:        "inv-1",
				Recipient: "Adamu Musa",
				Amount:    decimal.RequireFromString("50000"),
				Currency:  "NGN",
			}
			store.files["inv-1"] = []byte("xlsx-bytes")
			store.events = []*invoice.Event{{Amount: decimal.RequireFromString("50000"), Currency: "NGN"}}
		})

		It("lists invoices", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var invoices []*invoice.Invoice
			Expect(json.NewDecoder(resp.Body).Decode(&invoices)).To(Succeed())
			Expect(invoices).To(HaveLen(1))
		})

		It("returns one invoice", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/inv-1")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns Not Found for unknown invoices", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/missing")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("serves the archived workbook", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices/inv-1/file")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.Header.Get("Content-Type")).To(Equal(xlsxContentType))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("xlsx-bytes"))
		})

		It("deletes an invoice", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/invoices/inv-1", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(store.invoices).NotTo(HaveKey("inv-1"))
		})

		It("returns Not Found when deleting an unknown invoice", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/invoices/missing", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("lists analytics events", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/events")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			var events []*invoice.Event
			Expect(json.NewDecoder(resp.Body).Decode(&events)).To(Succeed())
			Expect(events).To(HaveLen(1))
		})

		When("there are no invoices", func() {
			BeforeEach(func() {
				store.invoices = map[string]*invoice.Invoice{}
			})

			It("returns an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
			})
		})
	})

	Describe("CORS", func() {
		It("answers preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/sessions/s1/messages", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("rejects requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/invoices", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})

package extraction

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		backend *Ollama
		req     Request
		text    string
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var newErr error
		backend, newErr = NewOllama(server.URL(), "llama3.1")
		Expect(newErr).NotTo(HaveOccurred())
		req = Request{
			Instructions: "extract invoice fields",
			Schema:       responseSchema(),
			UserText:     "Invoice Adamu Musa ₦50,000",
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = backend.Complete(context.Background(), req)
	})

	When("Ollama answers", func() {
		var sent ollamaChatRequest

		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, readErr := io.ReadAll(r.Body)
					Expect(readErr).NotTo(HaveOccurred())
					Expect(json.Unmarshal(body, &sent)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"recipient": "Adamu Musa"}`},
					Done:    true,
				}),
			))
		})

		It("returns the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"recipient": "Adamu Musa"}`))
		})

		It("sends a non-streaming request constrained by the schema", func() {
			Expect(sent.Model).To(Equal("llama3.1"))
			Expect(sent.Stream).To(BeFalse())
			Expect(sent.Format).To(HaveKeyWithValue("type", "object"))
			Expect(sent.Messages).To(HaveLen(2))
			Expect(sent.Messages[0].Role).To(Equal("system"))
			Expect(sent.Messages[1].Content).To(Equal(req.UserText))
		})
	})

	When("Ollama is overloaded", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, "loading model"))
		})

		It("returns ErrServiceUnavailable", func() {
			Expect(err).To(MatchError(ErrServiceUnavailable))
			Expect(retryable(err)).To(BeTrue())
		})
	})

	When("Ollama rejects the request", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, `{"error": "model not found"}`))
		})

		It("returns a permanent error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("model not found"))
			Expect(retryable(err)).To(BeFalse())
		})
	})

	When("Ollama returns garbage", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>"))
		})

		It("returns ErrMalformedResponse", func() {
			Expect(err).To(MatchError(ErrMalformedResponse))
		})
	})
})

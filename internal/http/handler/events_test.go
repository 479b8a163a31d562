package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/max-mines/epic-bot/internal/http/handler"
)

var _ = Describe("EventHandler", func() {
	var (
		bot    *mockBot
		router *gin.Engine
	)

	BeforeEach(func() {
		bot = &mockBot{}
		router = gin.New()
		router.POST("/slack/events", handler.NewEventHandler(bot).Handle)
	})

	postEvent := func(payload map[string]any) *httptest.ResponseRecorder {
		body, err := json.Marshal(payload)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("echoes the url_verification challenge", func() {
		w := postEvent(map[string]any{
			"type":      "url_verification",
			"challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P",
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"))
	})

	It("routes a threaded message to the engine", func() {
		w := postEvent(map[string]any{
			"type": "event_callback",
			"event": map[string]any{
				"type":      "message",
				"user":      "U123",
				"text":      "students",
				"channel":   "C123",
				"ts":        "1700000002.0001",
				"thread_ts": "1700000001.0001",
			},
		})

		Expect(w.Code).To(Equal(http.StatusOK))

		Eventually(bot.messageDispatches).Should(HaveLen(1))
		msg := bot.messageDispatches()[0]
		Expect(msg.ThreadTS).To(Equal("1700000001.0001"))
		Expect(msg.UserID).To(Equal("U123"))
		Expect(msg.Text).To(Equal("students"))
		Expect(msg.IsBot).To(BeFalse())
	})

	It("marks bot messages so the engine can ignore them", func() {
		postEvent(map[string]any{
			"type": "event_callback",
			"event": map[string]any{
				"type":      "message",
				"bot_id":    "B999",
				"text":      "echo",
				"channel":   "C123",
				"thread_ts": "1700000001.0001",
			},
		})

		Eventually(bot.messageDispatches).Should(HaveLen(1))
		Expect(bot.messageDispatches()[0].IsBot).To(BeTrue())
	})

	It("acks non-message events without dispatching", func() {
		w := postEvent(map[string]any{
			"type": "event_callback",
			"event": map[string]any{
				"type": "reaction_added",
			},
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Consistently(bot.messageDispatches).Should(BeEmpty())
	})

	It("rejects malformed payloads", func() {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

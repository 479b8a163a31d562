package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/max-mines/epic-bot/internal/http/handler"
)

var _ = Describe("CommandHandler", func() {
	var (
		bot    *mockBot
		router *gin.Engine
	)

	BeforeEach(func() {
		bot = &mockBot{}
		router = gin.New()
		router.POST("/slack/commands", handler.NewCommandHandler(bot).Handle)
	})

	postCommand := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/slack/commands",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("acks /story immediately and dispatches the epic flow", func() {
		w := postCommand(url.Values{
			"command":    {"/story"},
			"text":       {"Build a student dashboard"},
			"user_id":    {"U123"},
			"channel_id": {"C123"},
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(BeEmpty())

		Eventually(bot.epicDispatches).Should(HaveLen(1))
		Expect(bot.epicDispatches()[0]).To(Equal(dispatch{
			ChannelID: "C123",
			UserID:    "U123",
			Text:      "Build a student dashboard",
		}))
	})

	It("routes /delete-epic to the delete flow", func() {
		w := postCommand(url.Values{
			"command":    {"/delete-epic"},
			"text":       {"42"},
			"user_id":    {"U123"},
			"channel_id": {"C123"},
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Eventually(bot.deleteDispatches).Should(HaveLen(1))
		Expect(bot.deleteDispatches()[0].Text).To(Equal("42"))
	})

	It("routes /review-epic with an empty reference", func() {
		w := postCommand(url.Values{
			"command":    {"/review-epic"},
			"user_id":    {"U123"},
			"channel_id": {"C123"},
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Eventually(bot.reviewDispatches).Should(HaveLen(1))
		Expect(bot.reviewDispatches()[0].Text).To(BeEmpty())
	})

	It("answers unknown commands inline without dispatching", func() {
		w := postCommand(url.Values{
			"command":    {"/frobnicate"},
			"user_id":    {"U123"},
			"channel_id": {"C123"},
		})

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring("Unknown command: /frobnicate"))
		Consistently(bot.epicDispatches).Should(BeEmpty())
	})
})

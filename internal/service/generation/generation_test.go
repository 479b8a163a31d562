package generation_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/max-mines/epic-bot/common/llm"
	"github.com/max-mines/epic-bot/internal/model"
	"github.com/max-mines/epic-bot/internal/service/generation"
)

// mockLLMClient implements llm.Client for testing.
type mockLLMClient struct {
	completeFn func(ctx context.Context, req llm.Request) (*llm.Response, error)
	callCount  int
}

func (m *mockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.callCount++
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return nil, errors.New("mock not configured")
}

func (m *mockLLMClient) Model() string {
	return "test-model"
}

var _ = Describe("Service", func() {
	var (
		svc     generation.Service
		mockLLM *mockLLMClient
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		mockLLM = &mockLLMClient{}
		svc = generation.NewService(mockLLM)
	})

	Describe("GenerateStories", func() {
		It("parses the response into ordered stories", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				Expect(req.Prompt).To(ContainSubstring("Epic: submission flow"))
				Expect(req.Prompt).To(ContainSubstring("Users: students"))
				return &llm.Response{Text: `1. Upload work
   As a student, I want to upload files so that my work is handed in
   - upload succeeds

2. Grade work
   As an instructor, I want to grade uploads so that students get feedback
   - grade is stored`}, nil
			}

			got, err := svc.GenerateStories(ctx, generation.Context{
				Description: "submission flow",
				Users:       "students",
				Problem:     "no submissions",
				TechStack:   "Go",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(2))
			Expect(got[0].ID).To(Equal("story-001"))
			Expect(got[1].ID).To(Equal("story-002"))
			Expect(mockLLM.callCount).To(Equal(1))
		})

		It("includes a truncated readme excerpt when present", func() {
			var prompt string
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				prompt = req.Prompt
				return &llm.Response{Text: ""}, nil
			}

			_, err := svc.GenerateStories(ctx, generation.Context{
				Description: "x",
				RepoContext: strings.Repeat("r", 5000),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(prompt).To(ContainSubstring("Repository Context"))
			Expect(strings.Count(prompt, "r")).To(BeNumerically("<=", 3100))
		})

		It("returns an empty list for an unparseable response", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: "Sorry, I cannot help with that."}, nil
			}

			got, err := svc.GenerateStories(ctx, generation.Context{Description: "x"})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("retries once on transient errors", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				if mockLLM.callCount == 1 {
					return nil, errors.New("connection reset")
				}
				return &llm.Response{Text: "1. Ok\n   As a user, I want retries so that flakes recover\n   - works"}, nil
			}

			got, err := svc.GenerateStories(ctx, generation.Context{Description: "x"})

			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(mockLLM.callCount).To(Equal(2))
		})
	})

	Describe("RefineStories", func() {
		It("feeds current stories and feedback into the prompt", func() {
			var prompt string
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				prompt = req.Prompt
				return &llm.Response{Text: `1. Upload work v2
   As a student, I want resumable uploads so that large files survive
   - resume works`}, nil
			}

			current := []model.Story{{
				ID:                 "story-001",
				Title:              "Upload work",
				Story:              "As a student, I want to upload files so that my work is handed in",
				AcceptanceCriteria: []string{"upload succeeds"},
			}}

			got, err := svc.RefineStories(ctx, current, "make uploads resumable")

			Expect(err).NotTo(HaveOccurred())
			Expect(prompt).To(ContainSubstring("Upload work"))
			Expect(prompt).To(ContainSubstring(`The user wants changes: "make uploads resumable"`))
			Expect(got).To(HaveLen(1))
			Expect(got[0].Title).To(Equal("Upload work v2"))
		})
	})

	Describe("ReviewEpic", func() {
		It("returns the raw review text", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				Expect(req.Prompt).To(ContainSubstring("Review this epic"))
				return &llm.Response{Text: "✅ Good:\n- ok\n\n⚠️ Issues:\n1. too big"}, nil
			}

			text, err := svc.ReviewEpic(ctx, &model.Epic{ID: "epic-x", Title: "t"})

			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("Issues"))
		})
	})

	Describe("RefineStory", func() {
		current := model.Story{
			ID:                 "story-004",
			Title:              "Old title",
			Story:              "As a user, I want the old thing so that it works",
			AcceptanceCriteria: []string{"old criterion"},
			IssueIID:           42,
			IssueURL:           "https://example.com/issues/42",
		}

		It("preserves id and tracker linkage across the update", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: `Title: New title
Story: As a user, I want the new thing so that it is better
Acceptance Criteria:
- new criterion`}, nil
			}

			got, err := svc.RefineStory(ctx, current, "improve it", generation.Context{})

			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("story-004"))
			Expect(got.IssueIID).To(Equal(42))
			Expect(got.IssueURL).To(Equal(current.IssueURL))
			Expect(got.Title).To(Equal("New title"))
			Expect(got.AcceptanceCriteria).To(Equal([]string{"new criterion"}))
		})

		It("keeps existing content when the response omits fields", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				return &llm.Response{Text: "Title: Only a title"}, nil
			}

			got, err := svc.RefineStory(ctx, current, "tweak", generation.Context{})

			Expect(err).NotTo(HaveOccurred())
			Expect(got.Title).To(Equal("Only a title"))
			Expect(got.Story).To(Equal(current.Story))
			Expect(got.AcceptanceCriteria).To(Equal(current.AcceptanceCriteria))
		})

		It("propagates backend failures", func() {
			mockLLM.completeFn = func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				return nil, context.Canceled
			}

			_, err := svc.RefineStory(ctx, current, "tweak", generation.Context{})

			Expect(err).To(HaveOccurred())
			Expect(mockLLM.callCount).To(Equal(1))
		})
	})
})

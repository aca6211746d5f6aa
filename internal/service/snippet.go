package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sakif/idevgames/internal/apperror"
	"github.com/sakif/idevgames/internal/model"
	"github.com/sakif/idevgames/internal/repository"
)

// Validation constants.
const (
	MaxTitleLength       = 200
	MaxSummaryLength     = 1000
	MaxDescriptionLength = 20000
	DefaultPageSize      = 5
	MaxPageSize          = 100
)

var taxonomyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,49}$`)

// SnippetService handles the link-sharing snippets.
//
// Reads take showHidden from the caller's guard result; writes are only
// reachable through the AdminOnly guard, so the service itself does not
// check permissions.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		logger: logger,
	}
}

// SnippetInput carries the editable fields of a snippet.
type SnippetInput struct {
	Taxonomy    string    `json:"taxonomy"`
	Hidden      bool      `json:"hidden"`
	Title       string    `json:"title"`
	Icon        string    `json:"icon"`
	SharedBy    string    `json:"sharedBy"`
	SharedOn    time.Time `json:"sharedOn"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Href        string    `json:"href"`
}

// SnippetPage is one page of a taxonomy listing.
type SnippetPage struct {
	Snippets    []model.Snippet `json:"snippets"`
	CurrentPage int             `json:"currentPage"`
	TotalPages  int64           `json:"totalPages"`
}

func (in *SnippetInput) normalize() error {
	in.Taxonomy = strings.TrimSpace(in.Taxonomy)
	in.Title = strings.TrimSpace(in.Title)
	in.Icon = strings.TrimSpace(in.Icon)
	in.SharedBy = strings.TrimSpace(in.SharedBy)
	in.Summary = strings.TrimSpace(in.Summary)
	in.Description = strings.TrimSpace(in.Description)
	in.Href = strings.TrimSpace(in.Href)

	if !taxonomyPattern.MatchString(in.Taxonomy) {
		return apperror.ValidationFailed("taxonomy",
			"taxonomy must be lowercase letters, digits or dashes")
	}
	if in.Title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if len(in.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if len(in.Summary) > MaxSummaryLength {
		return apperror.ValidationFailed("summary",
			fmt.Sprintf("summary must be %d characters or less", MaxSummaryLength))
	}
	if len(in.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if in.Href != "" {
		u, err := url.Parse(in.Href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperror.ValidationFailed("href", "href must be an http or https URL")
		}
	}
	return nil
}

func (in SnippetInput) applyTo(s *model.Snippet) {
	s.Taxonomy = in.Taxonomy
	s.Hidden = in.Hidden
	s.Title = in.Title
	s.Icon = in.Icon
	s.SharedBy = in.SharedBy
	s.Summary = in.Summary
	s.Description = in.Description
	s.Href = in.Href
	if !in.SharedOn.IsZero() {
		s.SharedOn = in.SharedOn
	}
}

// List returns one page of a taxonomy, newest first. page is 1-based.
// Hidden snippets are included only when showHidden is set.
func (s *SnippetService) List(ctx context.Context, taxonomy string, page, pageSize int, showHidden bool) (*SnippetPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	opts := repository.ListOptions{
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
		Taxonomy:    strings.TrimSpace(taxonomy),
		VisibleOnly: !showHidden,
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, err
	}
	total, err := s.repo.Count(ctx, opts)
	if err != nil {
		return nil, err
	}

	totalPages := max((total+int64(pageSize)-1)/int64(pageSize), 1)
	return &SnippetPage{Snippets: snippets, CurrentPage: page, TotalPages: totalPages}, nil
}

// Get returns one snippet. A hidden snippet asked for without showHidden is
// reported as NotFound, the same as one that does not exist.
func (s *SnippetService) Get(ctx context.Context, id int64, showHidden bool) (*model.Snippet, error) {
	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet.Hidden && !showHidden {
		return nil, apperror.NotFound("snippet", fmt.Sprint(id))
	}
	return snippet, nil
}

// Create validates in and saves a snippet credited to creatorID.
func (s *SnippetService) Create(ctx context.Context, creatorID int64, in SnippetInput) (*model.Snippet, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{CreatorID: creatorID}
	in.applyTo(snippet)

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", in.Title),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("snippet created",
		slog.Int64("id", snippet.ID),
		slog.String("taxonomy", snippet.Taxonomy),
	)
	return snippet, nil
}

// Update replaces the editable fields of an existing snippet.
func (s *SnippetService) Update(ctx context.Context, id int64, in SnippetInput) (*model.Snippet, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	snippet, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.applyTo(snippet)

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("snippet updated", slog.Int64("id", id))
	return snippet, nil
}

// Delete removes a snippet. Returns apperror.ErrNotFound if it doesn't exist.
func (s *SnippetService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("snippet deleted", slog.Int64("id", id))
	return nil
}

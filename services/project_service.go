// services/project_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/config"
	"github.com/AI-Template-SDK/senso-visibility/internal/extraction"
	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/repositories/interfaces"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

var knownSurfaces = map[string]bool{
	config.ProviderOpenAI:     true,
	config.ProviderAnthropic:  true,
	config.ProviderGoogle:     true,
	config.ProviderPerplexity: true,
	config.SurfaceSERP:        true,
}

// ValidateProject rejects configurations on which mention detection cannot
// work or that break the data model.
func ValidateProject(p *models.Project) error {
	if len([]rune(strings.TrimSpace(p.BrandName))) < 2 {
		return &ValidationError{Field: "brand_name", Reason: "must be at least 2 characters"}
	}

	hasKeyword := false
	for _, kw := range p.BrandKeywords {
		if strings.TrimSpace(kw) != "" {
			hasKeyword = true
			break
		}
	}
	if strings.TrimSpace(p.BrandDomain) == "" && !hasKeyword {
		return &ValidationError{Field: "brand_domain", Reason: "a brand domain or at least one brand keyword is required"}
	}

	brandHost := extraction.CanonicalHost(p.BrandDomain)
	for i, c := range p.UnifiedCompetitors() {
		if brandHost != "" && c.Domain != "" && extraction.CanonicalHost(c.Domain) == brandHost {
			return &ValidationError{
				Field:  fmt.Sprintf("competitors[%d].domain", i),
				Reason: "competitor domain equals the brand domain",
			}
		}
	}

	seen := make(map[string]bool)
	for _, c := range p.TopicClusters.Clusters {
		name := textnorm.Fold(strings.TrimSpace(c.Name))
		if name == "" {
			return &ValidationError{Field: "topic_clusters", Reason: "cluster name is required"}
		}
		if seen[name] {
			return &ValidationError{Field: "topic_clusters", Reason: fmt.Sprintf("duplicate cluster name %q", c.Name)}
		}
		seen[name] = true
		if c.MatchMethod == textnorm.MatchRegex {
			for _, term := range c.Terms {
				if _, err := regexp.Compile(term); err != nil {
					return &ValidationError{Field: "topic_clusters", Reason: fmt.Sprintf("invalid regex %q", term)}
				}
			}
		}
	}

	if p.QueriesPerSurface < models.MinQueriesPerSurface || p.QueriesPerSurface > models.MaxQueriesPerSurface {
		return &ValidationError{
			Field:  "queries_per_surface",
			Reason: fmt.Sprintf("must be between %d and %d", models.MinQueriesPerSurface, models.MaxQueriesPerSurface),
		}
	}

	for _, s := range p.EnabledSurfaces {
		if !knownSurfaces[strings.ToLower(s)] {
			return &ValidationError{Field: "enabled_surfaces", Reason: fmt.Sprintf("unknown surface %q", s)}
		}
	}
	return nil
}

// loadActiveProject maps repository misses and inactive projects onto the
// service errors.
func loadActiveProject(ctx context.Context, repos *RepositoryManager, id uuid.UUID) (*models.Project, error) {
	project, err := repos.Projects.GetByID(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if !project.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrProjectInactive, id)
	}
	return project, nil
}

type projectService struct {
	repos *RepositoryManager
	cfg   *config.Config
}

func NewProjectService(cfg *config.Config, repos *RepositoryManager) ProjectService {
	return &projectService{repos: repos, cfg: cfg}
}

func (s *projectService) Create(ctx context.Context, project *models.Project) error {
	if project.QueriesPerSurface == 0 {
		project.QueriesPerSurface = models.DefaultQueriesPerSurface
	}
	if err := ValidateProject(project); err != nil {
		return err
	}
	project.Competitors = models.Competitors(project.UnifiedCompetitors())
	project.IsActive = true

	if err := s.repos.Projects.Create(ctx, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	s.emit(ctx, project.ID, models.EventProjectCreated, fmt.Sprintf("Started tracking %s", project.BrandName), nil, nil)

	log.Info().
		Str("project_id", project.ID.String()).
		Str("brand", project.BrandName).
		Msg("[CreateProject] project created")
	return nil
}

func (s *projectService) UpdateCompetitors(ctx context.Context, projectID uuid.UUID, competitors []models.Competitor) (*models.Project, error) {
	project, err := s.repos.Projects.GetByID(ctx, projectID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	before := competitorKeys(project.UnifiedCompetitors())
	project.Competitors = models.Competitors(competitors)
	project.CompetitorDomains = nil
	project.CompetitorKeywords = nil
	project.Competitors = models.Competitors(project.UnifiedCompetitors())
	if err := ValidateProject(project); err != nil {
		return nil, err
	}
	if err := s.repos.Projects.Update(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update competitors: %w", err)
	}

	after := competitorKeys(project.Competitors)
	description := fmt.Sprintf("Competitors: %s -> %s", strings.Join(before, ", "), strings.Join(after, ", "))
	s.emit(ctx, projectID, models.EventCompetitorsChanged, "Competitor set changed", &description, nil)
	return project, nil
}

func (s *projectService) Deactivate(ctx context.Context, projectID uuid.UUID) error {
	if err := s.repos.Projects.SetActive(ctx, projectID, false); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return fmt.Errorf("failed to deactivate project: %w", err)
	}
	return nil
}

func (s *projectService) Delete(ctx context.Context, projectID uuid.UUID) error {
	if err := s.repos.Projects.Delete(ctx, projectID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return fmt.Errorf("failed to delete project: %w", err)
	}
	log.Info().Str("project_id", projectID.String()).Msg("[DeleteProject] project and its history removed")
	return nil
}

func (s *projectService) emit(ctx context.Context, projectID uuid.UUID, eventType, title string, description *string, keywords []string) {
	recordEvent(ctx, s.repos, s.cfg.Today(), projectID, eventType, title, description, keywords)
}

// recordEvent appends to the project timeline. Timeline writes never fail the
// caller.
func recordEvent(ctx context.Context, repos *RepositoryManager, date time.Time, projectID uuid.UUID, eventType, title string, description *string, keywords []string) {
	event := &models.Event{
		ProjectID:        projectID,
		EventDate:        date,
		EventType:        eventType,
		Title:            title,
		Description:      description,
		KeywordsAffected: models.StringList(keywords),
	}
	if err := repos.Events.Create(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("project_id", projectID.String()).
			Str("event_type", eventType).
			Msg("[recordEvent] failed to write event")
	}
}

func competitorKeys(cs []models.Competitor) []string {
	keys := make([]string, 0, len(cs))
	for _, c := range cs {
		keys = append(keys, c.Key)
	}
	return keys
}

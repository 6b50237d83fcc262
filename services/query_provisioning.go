// services/query_provisioning.go
package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
	"github.com/AI-Template-SDK/senso-visibility/internal/textnorm"
)

type queryTemplates struct {
	general    []string
	brand      []string
	competitor []string
	// noRival replaces competitor templates for projects without competitors.
	noRival   []string
	modifiers []string
	industry  string
}

var templatesByLanguage = map[string]queryTemplates{
	"en": {
		general: []string{
			"What is the best %[1]s?",
			"Which %[1]s do you recommend?",
			"Top %[1]s tools",
			"How do I choose a %[1]s?",
			"What are the most popular %[1]s options?",
			"Compare the leading %[1]s providers",
			"Which %[1]s is easiest to use?",
			"What is the cheapest %[1]s that is still good?",
			"List the best rated %[1]s",
			"What %[1]s do experts use?",
			"Which %[1]s has the best reviews?",
			"What should I look for in a %[1]s?",
		},
		brand: []string{
			"What is %[2]s?",
			"Is %[2]s a good %[1]s?",
			"%[2]s reviews",
			"What are the pros and cons of %[2]s?",
			"How much does %[2]s cost?",
			"Is %[2]s worth it?",
			"What do users say about %[2]s?",
			"Who should use %[2]s?",
		},
		competitor: []string{
			"What are the best alternatives to %[3]s?",
			"%[3]s vs other %[1]s options",
			"Is there a better %[1]s than %[3]s?",
			"What are the downsides of %[3]s?",
			"Which %[1]s competes with %[3]s?",
			"Should I switch from %[3]s?",
		},
		noRival: []string{
			"Which companies lead the %[1]s market?",
			"What are the main %[1]s competitors?",
			"Which %[1]s brands are most trusted?",
			"What %[1]s would you avoid?",
		},
		modifiers: []string{"", " for small businesses", " for freelancers", " for startups", " in Europe"},
		industry:  "software",
	},
	"es": {
		general: []string{
			"¿Cuál es el mejor %[1]s?",
			"¿Qué %[1]s me recomiendas?",
			"Mejores herramientas de %[1]s",
			"¿Cómo elegir un %[1]s?",
			"¿Cuáles son las opciones de %[1]s más populares?",
			"Compara los principales proveedores de %[1]s",
			"¿Qué %[1]s es más fácil de usar?",
			"¿Cuál es el %[1]s más barato que sea bueno?",
			"Lista de %[1]s mejor valorados",
			"¿Qué %[1]s usan los expertos?",
			"¿Qué %[1]s tiene mejores opiniones?",
			"¿Qué debo buscar en un %[1]s?",
		},
		brand: []string{
			"¿Qué es %[2]s?",
			"¿%[2]s es un buen %[1]s?",
			"Opiniones de %[2]s",
			"¿Cuáles son las ventajas y desventajas de %[2]s?",
			"¿Cuánto cuesta %[2]s?",
			"¿Merece la pena %[2]s?",
			"¿Qué dicen los usuarios de %[2]s?",
			"¿Para quién es %[2]s?",
		},
		competitor: []string{
			"¿Cuáles son las mejores alternativas a %[3]s?",
			"%[3]s frente a otras opciones de %[1]s",
			"¿Hay un %[1]s mejor que %[3]s?",
			"¿Qué desventajas tiene %[3]s?",
			"¿Qué %[1]s compite con %[3]s?",
			"¿Debería dejar %[3]s?",
		},
		noRival: []string{
			"¿Qué empresas lideran el mercado de %[1]s?",
			"¿Cuáles son los principales competidores en %[1]s?",
			"¿Qué marcas de %[1]s son más fiables?",
			"¿Qué %[1]s evitarías?",
		},
		modifiers: []string{"", " para pymes", " para autónomos", " para startups", " en España"},
		industry:  "software",
	},
}

type queryProvisioner struct {
	repos *RepositoryManager
	now   func() time.Time
}

func NewQueryProvisioner(repos *RepositoryManager) QueryProvisioner {
	return &queryProvisioner{repos: repos, now: time.Now}
}

// QuerySplit returns how many general, brand and competitor queries make up n.
func QuerySplit(n int) (general, brand, competitor int) {
	general = int(math.Round(0.6 * float64(n)))
	brand = int(math.Round(0.2 * float64(n)))
	if general+brand > n {
		brand = n - general
	}
	return general, brand, n - general - brand
}

// Generate renders queries_per_surface queries in the project's language.
// Unknown languages use English.
func (p *queryProvisioner) Generate(project *models.Project) []*models.Query {
	lang := strings.ToLower(strings.TrimSpace(project.Language))
	tpl, ok := templatesByLanguage[lang]
	if !ok {
		lang = "en"
		tpl = templatesByLanguage[lang]
	}

	n := project.QueriesPerSurface
	if n <= 0 {
		n = models.DefaultQueriesPerSurface
	}
	generalN, brandN, competitorN := QuerySplit(n)

	industries := industryTerms(project, tpl.industry)
	var rivals []string
	for _, c := range project.UnifiedCompetitors() {
		if name := competitorName(c); name != "" {
			rivals = append(rivals, name)
		}
	}

	seen := make(map[string]bool)
	var out []*models.Query
	add := func(text, queryType string) bool {
		key := textnorm.Fold(text)
		if seen[key] {
			return false
		}
		seen[key] = true
		out = append(out, &models.Query{
			ID:        uuid.New(),
			ProjectID: project.ID,
			QueryText: text,
			Language:  lang,
			QueryType: queryType,
			IsActive:  true,
			CreatedAt: p.now().UTC(),
		})
		return true
	}

	fill(generalN, tpl.general, tpl.modifiers, func(t, mod string, i int) bool {
		return add(fmt.Sprintf(t, industries[i%len(industries)])+mod, models.QueryTypeGeneral)
	})
	fill(brandN, tpl.brand, tpl.modifiers, func(t, mod string, i int) bool {
		return add(fmt.Sprintf(t, industries[i%len(industries)], project.BrandName)+mod, models.QueryTypeWithBrand)
	})
	if len(rivals) > 0 {
		fill(competitorN, tpl.competitor, tpl.modifiers, func(t, mod string, i int) bool {
			return add(fmt.Sprintf(t, industries[0], project.BrandName, rivals[i%len(rivals)])+mod, models.QueryTypeWithCompetitor)
		})
	} else {
		fill(competitorN, tpl.noRival, tpl.modifiers, func(t, mod string, i int) bool {
			return add(fmt.Sprintf(t, industries[i%len(industries)])+mod, models.QueryTypeWithCompetitor)
		})
	}
	return out
}

// fill walks templates then modifiers until want renders succeed or every
// combination has been tried.
func fill(want int, templates, modifiers []string, render func(tpl, mod string, i int) bool) {
	got, i := 0, 0
	for _, mod := range modifiers {
		for _, t := range templates {
			if got >= want {
				return
			}
			if render(t, mod, i) {
				got++
			}
			i++
		}
	}
}

func (p *queryProvisioner) EnsureQueries(ctx context.Context, project *models.Project) ([]*models.Query, error) {
	queries, err := p.repos.Queries.ListActive(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	if len(queries) > 0 {
		return queries, nil
	}

	generated := p.Generate(project)
	log.Info().
		Str("project_id", project.ID.String()).
		Int("count", len(generated)).
		Msg("[EnsureQueries] provisioning starter queries")
	if err := p.repos.Queries.CreateBatch(ctx, generated); err != nil {
		return nil, fmt.Errorf("failed to store generated queries: %w", err)
	}
	queries, err = p.repos.Queries.ListActive(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload queries: %w", err)
	}
	return queries, nil
}

// industryTerms are the brand keywords that are not the brand itself, falling
// back to a generic term.
func industryTerms(project *models.Project, fallback string) []string {
	own := make(map[string]bool)
	for _, v := range textnorm.BrandVariations(project.BrandDomain, nil) {
		own[textnorm.Fold(v)] = true
	}
	own[textnorm.Fold(project.BrandName)] = true

	var terms []string
	for _, kw := range project.BrandKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || own[textnorm.Fold(kw)] {
			continue
		}
		terms = append(terms, kw)
	}
	if len(terms) == 0 {
		terms = []string{fallback}
	}
	return terms
}

func competitorName(c models.Competitor) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	if len(c.Keywords) > 0 && strings.TrimSpace(c.Keywords[0]) != "" {
		return c.Keywords[0]
	}
	if host := textnorm.HostOf(c.Domain); host != "" {
		return host
	}
	return ""
}

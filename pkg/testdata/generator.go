// Package testdata generates realistic fixtures for tests and local
// seeding. Nothing here runs in production paths.
package testdata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/joselopes-lab/brokerdesk/pkg/models"
)

// BrazilianCities maps states to the cities fixtures draw from.
var BrazilianCities = map[string][]string{
	"SP": {"São Paulo", "Campinas", "Santos", "Sorocaba", "Ribeirão Preto"},
	"RJ": {"Rio de Janeiro", "Niterói", "Petrópolis", "Campos"},
	"MG": {"Belo Horizonte", "Uberlândia", "Juiz de Fora"},
	"PR": {"Curitiba", "Londrina", "Maringá"},
	"RS": {"Porto Alegre", "Caxias do Sul", "Pelotas"},
}

var propertyInterests = []string{
	"2-bedroom apartment",
	"3-bedroom apartment with balcony",
	"studio near the metro",
	"house with backyard",
	"penthouse",
	"commercial storefront",
	"beachfront apartment",
	"gated-community house",
}

// Generator produces fake brokers and leads with a seeded source so a
// failing test reproduces.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator with a fixed seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(int64(seed))}
}

// Broker builds an active broker serving the given areas.
func (g *Generator) Broker(id string, areas ...models.ServiceArea) models.Broker {
	if len(areas) == 0 {
		areas = []models.ServiceArea{g.ServiceArea()}
	}
	return models.Broker{
		ID:           id,
		Name:         g.faker.Name(),
		Phone:        g.brazilianMobile(),
		Email:        g.faker.Email(),
		ServiceAreas: areas,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

// ServiceArea picks a random state/city pair.
func (g *Generator) ServiceArea() models.ServiceArea {
	states := []string{"SP", "RJ", "MG", "PR", "RS"}
	state := states[g.faker.IntRange(0, len(states)-1)]
	cities := BrazilianCities[state]
	return models.ServiceArea{
		State: state,
		City:  cities[g.faker.IntRange(0, len(cities)-1)],
	}
}

// PublicLead builds a capture-form payload for the given city.
func (g *Generator) PublicLead(state, city string) models.PublicLeadRequest {
	return models.PublicLeadRequest{
		Name:             g.faker.Name(),
		ContactPhone:     g.brazilianMobile(),
		ContactEmail:     g.faker.Email(),
		PropertyInterest: propertyInterests[g.faker.IntRange(0, len(propertyInterests)-1)],
		PropertyCity:     city,
		PropertyState:    state,
	}
}

// Lead builds a persisted lead in the given stage of a broker's
// pipeline.
func (g *Generator) Lead(brokerID, stageID string) models.Lead {
	now := time.Now().UTC()
	return models.Lead{
		ID:               bson.NewObjectID().Hex(),
		BrokerID:         brokerID,
		Name:             g.faker.Name(),
		ContactPhone:     g.brazilianMobile(),
		ContactEmail:     g.faker.Email(),
		PropertyInterest: propertyInterests[g.faker.IntRange(0, len(propertyInterests)-1)],
		Source:           models.SourceSite,
		Status:           stageID,
		TimePerStage:     map[string]float64{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// brazilianMobile returns a valid-looking +55 mobile number.
func (g *Generator) brazilianMobile() string {
	ddd := []string{"11", "21", "31", "41", "51"}[g.faker.IntRange(0, 4)]
	return fmt.Sprintf("+55%s9%08d", ddd, g.faker.IntRange(10000000, 99999999))
}

package scraper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pace/ingest-service/internal/model"
	"pace/ingest-service/internal/scraper"
)

func TestRedFlags_Match(t *testing.T) {
	flags := scraper.NewRedFlags([]string{"  Unpaid ", "", "MLM"})

	assert.Equal(t, "unpaid", flags.Match(model.Opportunity{Title: "UNPAID Marketing Internship"}))
	assert.Equal(t, "mlm", flags.Match(model.Opportunity{Title: "Sales", FullDescription: "join our mlm network"}))
	assert.Equal(t, "", flags.Match(model.Opportunity{Title: "Backend Engineer", Company: "Acme"}))
}

func TestRedFlags_Empty(t *testing.T) {
	var flags scraper.RedFlags
	assert.Equal(t, "", flags.Match(model.Opportunity{Title: "anything"}))
	assert.Empty(t, scraper.NewRedFlags([]string{" ", ""}))
}

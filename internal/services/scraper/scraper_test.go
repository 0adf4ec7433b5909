package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

func testSource(sourceType string, config map[string]interface{}) *models.Source {
	return &models.Source{
		ID:         common.NewSourceID(),
		Name:       "Acme Corp",
		SourceType: sourceType,
		Config:     config,
		Status:     models.SourceStatusActive,
	}
}

func TestNew_SelectsAdapterByType(t *testing.T) {
	deps := Deps{Client: newTestClient(t), Logger: common.GetLogger()}

	tests := []struct {
		sourceType string
		config     map[string]interface{}
		wantName   string
	}{
		{models.SourceTypeGreenhouse, map[string]interface{}{"board_token": "acme"}, "greenhouse:acme"},
		{models.SourceTypeLever, map[string]interface{}{"board_token": "acme"}, "lever:acme"},
		{models.SourceTypeAshby, map[string]interface{}{"board_token": "acme"}, "ashby:acme"},
		{models.SourceTypeSmartRecruiters, map[string]interface{}{"board_token": "acme"}, "smartrecruiters:acme"},
		{models.SourceTypeRecruitee, map[string]interface{}{"board_token": "acme"}, "recruitee:acme"},
		{models.SourceTypeBreezy, map[string]interface{}{"board_token": "acme"}, "breezy:acme"},
		{models.SourceTypeWorkable, map[string]interface{}{"board_token": "acme"}, "workable:acme"},
		{models.SourceTypeRSS, map[string]interface{}{"url": "https://acme.com/jobs.rss"}, "rss:acme.com"},
	}

	for _, tt := range tests {
		t.Run(tt.sourceType, func(t *testing.T) {
			s, err := New(testSource(tt.sourceType, tt.config), deps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}

func TestNew_UnknownTypeFails(t *testing.T) {
	deps := Deps{Client: newTestClient(t)}
	_, err := New(testSource("taleo", nil), deps)
	var config *ConfigError
	require.ErrorAs(t, err, &config)
}

func TestNew_MissingConfigFails(t *testing.T) {
	deps := Deps{Client: newTestClient(t)}

	_, err := New(testSource(models.SourceTypeGreenhouse, nil), deps)
	var config *ConfigError
	require.ErrorAs(t, err, &config)

	_, err = New(testSource(models.SourceTypeHTML, map[string]interface{}{"url": "https://acme.com"}), deps)
	require.ErrorAs(t, err, &config)
}

func TestBoardToken(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   string
	}{
		{
			"explicit token wins",
			map[string]interface{}{"board_token": "acme", "url": "https://boards.greenhouse.io/other"},
			"acme",
		},
		{
			"path addressed board",
			map[string]interface{}{"url": "https://boards.greenhouse.io/acme"},
			"acme",
		},
		{
			"subdomain addressed board",
			map[string]interface{}{"url": "https://acme.recruitee.com/api/offers/"},
			"acme",
		},
		{
			"nothing to derive from",
			map[string]interface{}{},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, boardToken(testSource(models.SourceTypeGreenhouse, tt.config)))
		})
	}
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "https://acme.com/jobs/1", resolveURL("https://acme.com/careers", "/jobs/1"))
	assert.Equal(t, "https://acme.com/careers/jobs/1", resolveURL("https://acme.com/careers/", "jobs/1"))
	assert.Equal(t, "https://other.com/x", resolveURL("https://acme.com", "https://other.com/x"))
	assert.Equal(t, "", resolveURL("https://acme.com", ""))
}

func TestSourceCompany(t *testing.T) {
	source := testSource(models.SourceTypeGreenhouse, map[string]interface{}{
		"company_name":    "Acme Robotics",
		"company_website": "https://acme.com",
	})
	name, website := sourceCompany(source)
	assert.Equal(t, "Acme Robotics", name)
	assert.Equal(t, "https://acme.com", website)

	name, website = sourceCompany(testSource(models.SourceTypeGreenhouse, nil))
	assert.Equal(t, "Acme Corp", name)
	assert.Empty(t, website)
}

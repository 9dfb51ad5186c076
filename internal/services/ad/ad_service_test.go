package ad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wafferli/wafferli-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func timePtr(v time.Time) *time.Time {
	return &v
}

func activeRequest(adType models.AdType) *adRequest {
	req := &adRequest{
		AdType:   adType,
		Title:    "Тестовое объявление",
		Category: "electronics",
		Status:   "active",
		Images:   []RequestImage{{URL: "https://example.com/1.jpg", PublicID: "p1"}},
	}
	if adType.HasPrice() {
		req.Price = floatPtr(10)
	}
	if adType.HasDates() {
		req.StartDate = timePtr(time.Now().Add(24 * time.Hour))
	}
	return req
}

func TestValidateRejectsUnknownType(t *testing.T) {
	req := activeRequest("subscription")
	assert.NotEmpty(t, validateAdRequest(req))
}

func TestValidateRequiresTitle(t *testing.T) {
	req := activeRequest(models.AdTypeProduct)
	req.Title = ""
	assert.NotEmpty(t, validateAdRequest(req))
}

func TestValidateDefaultsStatusToDraft(t *testing.T) {
	req := &adRequest{AdType: models.AdTypeProduct, Title: "Без статуса", Status: "published"}
	assert.Empty(t, validateAdRequest(req))
	assert.Equal(t, "draft", req.Status)
}

func TestValidateActiveNeedsCategoryAndImage(t *testing.T) {
	req := activeRequest(models.AdTypeProduct)
	req.Category = ""
	assert.NotEmpty(t, validateAdRequest(req))

	req = activeRequest(models.AdTypeProduct)
	req.Images = nil
	assert.NotEmpty(t, validateAdRequest(req))

	// Черновик можно сохранить без категории и изображений
	req = &adRequest{AdType: models.AdTypeProduct, Title: "Черновик", Status: "draft"}
	assert.Empty(t, validateAdRequest(req))
}

func TestValidatePriceRules(t *testing.T) {
	req := activeRequest(models.AdTypeProduct)
	req.Price = nil
	assert.NotEmpty(t, validateAdRequest(req))

	req = activeRequest(models.AdTypeProduct)
	req.Price = floatPtr(-5)
	assert.NotEmpty(t, validateAdRequest(req))

	// Валюта по умолчанию
	req = activeRequest(models.AdTypeOffer)
	req.Currency = ""
	assert.Empty(t, validateAdRequest(req))
	assert.Equal(t, "KWD", req.Currency)
}

func TestValidateClearsPriceForServiceAndEvent(t *testing.T) {
	req := activeRequest(models.AdTypeService)
	req.Price = floatPtr(100)
	req.Currency = "KWD"
	assert.Empty(t, validateAdRequest(req))
	assert.Nil(t, req.Price)
	assert.Empty(t, req.Currency)
}

func TestValidateDiscountOnlyForOffers(t *testing.T) {
	req := activeRequest(models.AdTypeOffer)
	req.DiscountPercent = intPtr(150)
	assert.NotEmpty(t, validateAdRequest(req))

	req = activeRequest(models.AdTypeOffer)
	req.DiscountPercent = intPtr(30)
	assert.Empty(t, validateAdRequest(req))
	assert.Equal(t, 30, *req.DiscountPercent)

	// У товара скидка стирается молча
	req = activeRequest(models.AdTypeProduct)
	req.DiscountPercent = intPtr(30)
	assert.Empty(t, validateAdRequest(req))
	assert.Nil(t, req.DiscountPercent)
}

func TestValidateEventDates(t *testing.T) {
	req := activeRequest(models.AdTypeEvent)
	req.StartDate = nil
	assert.NotEmpty(t, validateAdRequest(req))

	start := time.Now().Add(48 * time.Hour)
	req = activeRequest(models.AdTypeEvent)
	req.StartDate = timePtr(start)
	req.EndDate = timePtr(start.Add(-time.Hour))
	assert.NotEmpty(t, validateAdRequest(req))

	req = activeRequest(models.AdTypeEvent)
	req.StartDate = timePtr(start)
	req.EndDate = timePtr(start.Add(2 * time.Hour))
	assert.Empty(t, validateAdRequest(req))
}

func TestValidateClearsDatesForNonEvents(t *testing.T) {
	req := activeRequest(models.AdTypeProduct)
	req.StartDate = timePtr(time.Now())
	req.EndDate = timePtr(time.Now())
	assert.Empty(t, validateAdRequest(req))
	assert.Nil(t, req.StartDate)
	assert.Nil(t, req.EndDate)
}

func TestPublicAdsFilterBuildsSameClauseForPageAndCount(t *testing.T) {
	// Страница нумерует плейсхолдеры с $2 (после userID), счетчик — с $1
	clause, args := publicAdsFilter("product", "electronics", 2)
	assert.Equal(t, ` AND a.ad_type = $2 AND a.category = $3`, clause)
	assert.Equal(t, []interface{}{"product", "electronics"}, args)

	clause, args = publicAdsFilter("", "toys", 1)
	assert.Equal(t, ` AND a.category = $1`, clause)
	assert.Equal(t, []interface{}{"toys"}, args)

	clause, args = publicAdsFilter("", "", 2)
	assert.Empty(t, clause)
	assert.Empty(t, args)
}

func TestValidateServiceAreaOnlyForServices(t *testing.T) {
	req := activeRequest(models.AdTypeService)
	req.ServiceArea = "Hawalli"
	assert.Empty(t, validateAdRequest(req))
	assert.Equal(t, "Hawalli", req.ServiceArea)

	req = activeRequest(models.AdTypeExplore)
	req.ServiceArea = "Hawalli"
	assert.Empty(t, validateAdRequest(req))
	assert.Empty(t, req.ServiceArea)
}

package parser

import (
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		kind    models.OutcomeKind
		message string
	}{
		{
			name: "captcha container",
			html: `<h1>Маска</h1><div class="captcha__container"></div>`,
			kind: models.OutcomeCaptchaDetected,
		},
		{
			name: "captcha word in markup",
			html: `<html><body><p>Введите КАПЧА код</p></body></html>`,
			kind: models.OutcomeCaptchaDetected,
		},
		{
			name: "captcha script reference",
			html: `<script src="/static/Captcha.js"></script><h1>Маска</h1>`,
			kind: models.OutcomeCaptchaDetected,
		},
		{
			name:    "sold out",
			html:    `<div class="product-page__title-status--sold-out"> Нет в наличии </div>`,
			kind:    models.OutcomeProductUnavailable,
			message: "Нет в наличии",
		},
		{
			name:    "not found",
			html:    `<p class="product-page__title--not-found">Товар не найден</p>`,
			kind:    models.OutcomeProductUnavailable,
			message: "Товар не найден",
		},
		{
			name: "sold out marker ignored when name present",
			html: `<h1>Маска</h1><div class="product-page__title-status--sold-out">Нет в наличии</div>`,
			kind: models.OutcomeSuccess,
		},
	}

	parser := NewWildberriesParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := parser.ParseProductPage(tt.html, detailURL)
			assert.Equal(t, tt.kind, outcome.Kind)
			assert.Equal(t, "https://www.wildberries.ru/catalog/12345678/detail.aspx", outcome.URL)
			if tt.message != "" {
				assert.Equal(t, tt.message, outcome.Message)
			}
			if tt.kind != models.OutcomeSuccess {
				assert.Nil(t, outcome.Record)
			}
		})
	}
}

func TestIsCaptchaPage(t *testing.T) {
	assert.True(t, IsCaptchaPage(`<div class="captcha__container"></div>`))
	assert.False(t, IsCaptchaPage(detailPage))
}

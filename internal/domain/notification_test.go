package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adyen-notify/internal/domain"
)

func authorisationParams() map[string]string {
	return map[string]string{
		"pspReference":                    "7914483013255061",
		"originalReference":               "",
		"merchantReference":               "R207199925",
		"eventCode":                       "AUTHORISATION",
		"success":                         "true",
		"value":                           "2200",
		"currency":                        "EUR",
		"eventDate":                       "2015-11-23T17:55:25.30Z",
		"reason":                          "21633:0002:8/2018",
		"paymentMethod":                   "amex",
		"merchantAccountCode":             "TestMerchant",
		"additionalData.authCode":         "21633",
		"additionalData.cardSummary":      "0002",
		"additionalData.cardHolderName":   "John Doe",
		"additionalData.hmacSignature":    "xxxxxxxx",
	}
}

func TestBuildNotification(t *testing.T) {
	n, err := domain.BuildNotification(authorisationParams())
	require.NoError(t, err)

	assert.Equal(t, "7914483013255061", n.PSPReference)
	assert.Equal(t, "R207199925", n.MerchantReference)
	assert.Equal(t, domain.EventAuthorisation, n.EventCode)
	assert.True(t, n.Success)
	assert.Equal(t, int64(2200), n.Value)
	assert.Equal(t, "EUR", n.Currency)
	assert.Equal(t, "21633:0002:8/2018", n.Reason)
	assert.False(t, n.FollowUp())

	expectedDate, _ := time.Parse(time.RFC3339, "2015-11-23T17:55:25.30Z")
	assert.True(t, n.EventDate.Equal(expectedDate))

	assert.Equal(t, map[string]string{
		"authCode":       "21633",
		"cardSummary":    "0002",
		"cardHolderName": "John Doe",
		"hmacSignature":  "xxxxxxxx",
	}, n.AdditionalData)
}

func TestBuildNotificationFollowUp(t *testing.T) {
	params := authorisationParams()
	params["eventCode"] = "CAPTURE"
	params["originalReference"] = "7914483013255061"
	params["pspReference"] = "8614483013279252"

	n, err := domain.BuildNotification(params)
	require.NoError(t, err)
	assert.True(t, n.FollowUp())
	assert.Equal(t, domain.EventCapture, n.EventCode)
}

func TestBuildNotificationMissingFields(t *testing.T) {
	_, err := domain.BuildNotification(map[string]string{"eventCode": "AUTHORISATION"})
	require.ErrorIs(t, err, domain.ErrMalformedNotification)

	_, err = domain.BuildNotification(map[string]string{"pspReference": "123"})
	require.ErrorIs(t, err, domain.ErrMalformedNotification)
}

func TestBuildNotificationBadValue(t *testing.T) {
	params := authorisationParams()
	params["value"] = "twenty"
	_, err := domain.BuildNotification(params)
	require.ErrorIs(t, err, domain.ErrMalformedNotification)
}

func TestBuildNotificationUnknownEventCodeKept(t *testing.T) {
	params := authorisationParams()
	params["eventCode"] = "REPORT_AVAILABLE"
	n, err := domain.BuildNotification(params)
	require.NoError(t, err)
	assert.Equal(t, domain.EventCode("REPORT_AVAILABLE"), n.EventCode)
}

package webhook

import (
	"net/http"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/delivery"
	"github.com/mattjoyce/herald/internal/webhook/mocks"
)

func TestHandleExternal_DeliveryArguments(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	d := mocks.NewMockDeliverer(ctrl)
	d.EXPECT().
		Deliver(gomock.Any(), gomock.Any(), "coverage", "A new build from Azure DevOps! :smile:\nBuild #42 passed").
		Return(&delivery.Receipt{MessageID: uuid.NewString(), Stream: "engineering", Topic: "coverage"}, nil).
		Times(1)

	s := newTestServer(t, d, nil)
	router := s.setupRoutes()

	rec := postWebhook(router, "/api/v1/external/azuredevops?api_key="+testAPIKey,
		`{"detailedMessage": {"markdown": "Build #42 passed"}}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"result":"success","msg":""}`, rec.Body.String())
}

func TestHandleExternal_NoDeliveryOnBadPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// No EXPECT: any Deliver call fails the test.
	d := mocks.NewMockDeliverer(ctrl)

	s := newTestServer(t, d, nil)
	router := s.setupRoutes()

	rec := postWebhook(router, "/api/v1/external/azuredevops?api_key="+testAPIKey,
		`{"detailedMessage": {}}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detailedMessage.markdown")
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/stockflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type branchRequest struct {
	SourceBranchID      uuid.UUID `json:"source_branch_id"`
	DestinationBranchID uuid.UUID `json:"destination_branch_id" binding:"required,branch_pair=SourceBranchID" validate:"branch_pair=SourceBranchID"`
	Note                string    `json:"note" binding:"max=5"`
}

func TestBranchPair(t *testing.T) {
	v := validator.New()
	RegisterRules(v)

	a, b := uuid.New(), uuid.New()
	tests := []struct {
		name  string
		req   branchRequest
		valid bool
	}{
		{"distinct", branchRequest{SourceBranchID: a, DestinationBranchID: b}, true},
		{"same", branchRequest{SourceBranchID: a, DestinationBranchID: a}, false},
		{"source missing", branchRequest{DestinationBranchID: b}, false},
		{"destination missing", branchRequest{SourceBranchID: a}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, "destination_branch_id", verrs[0].Field())
			assert.Equal(t, "branch_pair", verrs[0].Tag())
		})
	}
}

func bindRouter(t *testing.T) *gin.Engine {
	t.Helper()
	require.NoError(t, SetupValidator())
	r := gin.New()
	r.Use(RequestID())
	r.POST("/transfers", func(c *gin.Context) {
		var req branchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
		c.Status(http.StatusCreated)
	})
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleBindError_ValidationDetails(t *testing.T) {
	r := bindRouter(t)
	id := uuid.NewString()
	body := `{"source_branch_id":"` + id + `","destination_branch_id":"` + id + `","note":"far too long"}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	fields := map[string]string{}
	for _, d := range resp.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Source and destination branches must be set and differ", fields["destination_branch_id"])
	assert.Equal(t, "Must be at most 5 characters", fields["note"])
}

func TestHandleBindError_MalformedJSON(t *testing.T) {
	r := bindRouter(t)
	w := serve(r, httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(`{"source_branch_id":`)))

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, dto.ErrCodeInvalidJSON, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}

func TestHandleBindError_Accepts(t *testing.T) {
	r := bindRouter(t)
	body := `{"source_branch_id":"` + uuid.NewString() + `","destination_branch_id":"` + uuid.NewString() + `"}`
	w := serve(r, httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body)))
	assert.Equal(t, http.StatusCreated, w.Code)
}

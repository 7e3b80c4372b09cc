package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendSuccess(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"key":  q.Get("key"),
			"text": q.Get("text"),
			"to":   q.Get("to"),
			"from": q.Get("from"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"Result":"SUCCESS"}]`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "api-key", "72227222", zap.NewNop())
	err := sender.Send(context.Background(), "88112233", "482913")
	require.NoError(t, err)

	assert.Equal(t, "api-key", gotQuery["key"])
	assert.Equal(t, "482913 is your confirmation code for VIOT", gotQuery["text"])
	assert.Equal(t, "+97688112233", gotQuery["to"], "bare numbers get the country prefix")
	assert.Equal(t, "72227222", gotQuery["from"])
}

func TestSendKeepsExplicitPrefix(t *testing.T) {
	var to string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		to = r.URL.Query().Get("to")
		_, _ = w.Write([]byte(`[{"Result":"SUCCESS"}]`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "api-key", "72227222", zap.NewNop())
	require.NoError(t, sender.Send(context.Background(), "+14155550123", "482913"))
	assert.Equal(t, "+14155550123", to)
}

func TestSendProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Result":"FAILED","ErrorMessage":"insufficient balance"}]`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "api-key", "72227222", zap.NewNop())
	err := sender.Send(context.Background(), "88112233", "482913")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestSendNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "api-key", "72227222", zap.NewNop())
	err := sender.Send(context.Background(), "88112233", "482913")
	assert.Error(t, err)
}

func TestSendMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "api-key", "72227222", zap.NewNop())
	assert.Error(t, sender.Send(context.Background(), "88112233", "482913"))
}

func TestSendUnconfigured(t *testing.T) {
	sender := NewHTTPSender("", "", "", zap.NewNop())
	assert.Error(t, sender.Send(context.Background(), "88112233", "482913"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "88****33", MaskPhone("88112233"))
	assert.Equal(t, "+9********23", MaskPhone("+97688112233"))
	assert.Equal(t, "****", MaskPhone("123"))
	assert.Equal(t, "****", MaskPhone(""))
}

package apiconnect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/opensplit/pkg/api"
)

type echoProfiles struct {
	UnimplementedProfileServiceHandler
}

func (echoProfiles) GetProfile(_ context.Context, req *connect.Request[api.GetProfileRequest]) (*connect.Response[api.GetProfileResponse], error) {
	return connect.NewResponse(&api.GetProfileResponse{
		Profile: &api.Profile{UserID: req.Msg.UserID, FullName: "Ana Santos"},
	}), nil
}

func TestProfileService_RoundTrip(t *testing.T) {
	path, handler := NewProfileServiceHandler(echoProfiles{})
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewProfileServiceClient(http.DefaultClient, server.URL+"/")

	resp, err := client.GetProfile(context.Background(), connect.NewRequest(&api.GetProfileRequest{UserID: "ana"}))
	require.NoError(t, err)
	assert.Equal(t, "ana", resp.Msg.Profile.UserID)
	assert.Equal(t, "Ana Santos", resp.Msg.Profile.FullName)

	_, err = client.UpdateProfile(context.Background(), connect.NewRequest(&api.UpdateProfileRequest{}))
	assert.Equal(t, connect.CodeUnimplemented, connect.CodeOf(err))
}

func TestHandler_SpeaksPlainJSON(t *testing.T) {
	path, handler := NewProfileServiceHandler(echoProfiles{})
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Post(server.URL+ProfileServiceGetProfileProcedure, "application/json", strings.NewReader(`{"user_id":"ben"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out api.GetProfileResponse
	require.NoError(t, Codec{}.Unmarshal(body, &out))
	assert.Equal(t, "ben", out.Profile.UserID)

	missing, err := http.Post(server.URL+"/"+ProfileServiceName+"/Nope", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestCodec_EmptyBody(t *testing.T) {
	var req api.ListGroupsRequest
	assert.NoError(t, Codec{}.Unmarshal(nil, &req))
	assert.Equal(t, "json", Codec{}.Name())
}

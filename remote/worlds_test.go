package remote

import (
	"context"
	"net/http"
	"strconv"
	"sort"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcmanager/minimanager/internal/models"
)

func TestWorldValidate(t *testing.T) {
	w := World{ID: "w1", OwnerID: "u1", VersionID: "1.20.1", AllocatedMemory: 1024}
	assert.NoError(t, w.Validate())

	w.ID = "../etc"
	assert.Error(t, w.Validate())

	w.ID = "w1"
	w.OwnerID = ""
	assert.Error(t, w.Validate())

	w.OwnerID = "u1"
	w.Hostname = "Not A Host"
	assert.Error(t, w.Validate())
}

func TestGetEnabledWorlds(t *testing.T) {
	c, _ := createTestClient(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/worlds", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("enabled"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		var res worldsPage
		res.Meta.Pagination = Pagination{CurrentPage: uint(page), LastPage: 3, PerPage: 1, Total: 3}
		res.Data = []World{{
			ID:              "w" + strconv.Itoa(page),
			OwnerID:         "u1",
			VersionID:       "1.20.1",
			AllocatedMemory: 1024,
			Enabled:         true,
		}}
		if page == 2 {
			// Not safe to use as a directory name, dropped by the client.
			res.Data = append(res.Data, World{ID: "../../x", OwnerID: "u1", VersionID: "1", AllocatedMemory: 1})
		}
		_ = json.NewEncoder(rw).Encode(res)
	})

	worlds, err := c.GetEnabledWorlds(context.Background(), 1)
	require.NoError(t, err)
	ids := make([]string, 0, len(worlds))
	for _, w := range worlds {
		ids = append(ids, w.ID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"w1", "w2", "w3"}, ids)
}

func TestGetWorld(t *testing.T) {
	c, _ := createTestClient(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/worlds/w1" {
			rw.WriteHeader(http.StatusNotFound)
			_, _ = rw.Write([]byte(`{"errors":[{"code":"NotFound","detail":"no such world"}]}`))
			return
		}
		_, _ = rw.Write([]byte(`{"id":"w1","owner_id":"u1","name":"Lobby","version_id":"1.20.1","allocated_memory":2048,"enabled":true}`))
	})

	w, err := c.GetWorld(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "Lobby", w.Name)
	assert.Equal(t, 2048, w.AllocatedMemory)
	assert.True(t, w.Enabled)

	_, err = c.GetWorld(context.Background(), "w2")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, AsRequestError(err).StatusCode())
}

func TestSendActivityLogs(t *testing.T) {
	c, _ := createTestClient(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		var body struct {
			Data []models.Activity `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Data, 1)
		assert.Equal(t, models.Event("server:crash"), body.Data[0].Event)
		rw.WriteHeader(http.StatusNoContent)
	})

	err := c.SendActivityLogs(context.Background(), []models.Activity{{World: "w1", Event: "server:crash"}})
	assert.NoError(t, err)
}

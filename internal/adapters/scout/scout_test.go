package scout_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"scoutq/internal/adapters/scout"
	"scoutq/internal/config"
	"scoutq/internal/domain/model"
)

func TestClientScout(t *testing.T) {
	Convey("Given a scout provider", t, func() {
		var gotPath string
		var gotBody [][2]float64
		var gotHeader http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotHeader = r.Header.Clone()
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		points := []model.Point{{Lat: 40.1, Lon: -73.2}, {Lat: 40.2, Lon: -73.3}}

		Convey("When scouting with basic auth credentials", func() {
			client := scout.NewClient(config.ScoutConfig{
				BaseURL:  srv.URL,
				Username: "user",
				Password: "pass",
			})
			err := client.Scout(context.Background(), points)

			Convey("Then the coordinates post as lat/lon pairs", func() {
				So(err, ShouldBeNil)
				So(gotPath, ShouldEqual, "/scout")
				So(gotBody, ShouldResemble, [][2]float64{{40.1, -73.2}, {40.2, -73.3}})
			})

			Convey("Then basic auth is applied", func() {
				So(gotHeader.Get("Authorization"), ShouldStartWith, "Basic ")
			})
		})

		Convey("When scouting with an API key", func() {
			client := scout.NewClient(config.ScoutConfig{BaseURL: srv.URL, APIKey: "k-123"})
			So(client.Scout(context.Background(), points), ShouldBeNil)
			So(gotHeader.Get("X-API-Key"), ShouldEqual, "k-123")
		})

		Convey("When scouting with a bearer token", func() {
			client := scout.NewClient(config.ScoutConfig{BaseURL: srv.URL, BearerToken: "t-456"})
			So(client.Scout(context.Background(), points), ShouldBeNil)
			So(gotHeader.Get("Authorization"), ShouldEqual, "Bearer t-456")
		})

		Convey("When basic auth and an API key are both set", func() {
			client := scout.NewClient(config.ScoutConfig{
				BaseURL: srv.URL, Username: "user", Password: "pass", APIKey: "k-123",
			})
			So(client.Scout(context.Background(), points), ShouldBeNil)

			Convey("Then basic auth takes precedence", func() {
				So(gotHeader.Get("Authorization"), ShouldStartWith, "Basic ")
				So(gotHeader.Get("X-API-Key"), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a provider returning an error status", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := scout.NewClient(config.ScoutConfig{BaseURL: srv.URL})
		err := client.Scout(context.Background(), []model.Point{{Lat: 1, Lon: 2}})
		So(errors.Is(err, scout.ErrStatus), ShouldBeTrue)
	})

	Convey("Given an unreachable provider", t, func() {
		client := scout.NewClient(config.ScoutConfig{BaseURL: "http://127.0.0.1:1"})
		err := client.Scout(context.Background(), []model.Point{{Lat: 1, Lon: 2}})
		So(errors.Is(err, scout.ErrCall), ShouldBeTrue)
	})
}

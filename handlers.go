package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var (
	appVersion string
)

const sessionHeader = "X-Session-Id"

// service holds the process wide collaborators shared by the handlers.
type service struct {
	catalog  RuleCatalog
	windows  *VigencyConfigProvider
	sessions *SessionRegistry
}

type alertsRequest struct {
	Patient PatientRequest   `json:"patient"`
	Local   []RawAlertRecord `json:"local"`
	Aux     AuxData          `json:"aux"`
}

type ruleInfo struct {
	Key         string      `json:"key"`
	Label       string      `json:"label"`
	Icon        string      `json:"icon"`
	Category    Category    `json:"category"`
	VigencyDays int         `json:"vigencyDays"`
	WindowKey   string      `json:"windowKey,omitempty"`
	Eligibility Eligibility `json:"eligibility"`
}

type vigenciasInfo struct {
	Remote    bool           `json:"remote"`
	Vigencias map[string]int `json:"vigencias"`
}

func heartbeat(c echo.Context) error {
	// Heartbeat function to assess service status. Immediately return 200
	return c.NoContent(http.StatusOK)
}

// rules lists the catalog with the windows currently in effect.
func (s *service) rules(c echo.Context) error {
	ctx := c.Request().Context()

	infos := make([]ruleInfo, 0, s.catalog.Len())
	for _, rule := range s.catalog.Rules() {
		infos = append(infos, ruleInfo{
			Key:         rule.Key,
			Label:       rule.Label,
			Icon:        rule.Icon,
			Category:    rule.Category,
			VigencyDays: ruleWindow(ctx, s.windows, rule),
			WindowKey:   rule.WindowKey,
			Eligibility: rule.Eligibility,
		})
	}

	return c.JSON(http.StatusOK, infos)
}

func (s *service) vigencias(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, vigenciasInfo{
		Remote:    s.windows.Remote(ctx),
		Vigencias: s.windows.Load(ctx),
	})
}

func (s *service) alerts(c echo.Context) error {
	// Obtains raw http request
	r := c.Request()
	ctx := r.Context()

	patientID := strings.TrimSpace(c.Param("patientId"))
	if patientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "patient id is required")
	}

	body, err := parseAlertsRequest(r.Body)
	if err != nil {
		logger(ctx, err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// The presenter's token travels with the upstream calls
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		ctx = withUpstreamHeaders(ctx, map[string]string{"Authorization": authHeader})
	}

	pipeline := s.sessions.Pipeline(sessionKey(c))
	ev, err := pipeline.Load(ctx, LoadRequest{
		PatientID: patientID,
		Patient:   body.Patient.context(),
		Local:     body.Local,
		Aux:       body.Aux,
	})
	if errors.Is(err, ErrCanceled) {
		// A newer request from the same session owns the result
		return c.NoContent(http.StatusConflict)
	}
	if err != nil {
		logger(ctx, err)
		return c.NoContent(http.StatusInternalServerError)
	}

	sendWebLog(ctx, ev, requestUser(c))

	return c.JSON(http.StatusOK, ev)
}

func parseAlertsRequest(r io.Reader) (alertsRequest, error) {
	var req alertsRequest

	data, err := io.ReadAll(r)
	if err != nil {
		return req, fmt.Errorf("unable to read request body: %w", err)
	}

	// An empty body asks for an evaluation without patient context
	if len(strings.TrimSpace(string(data))) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("unable to unmarshal request body: %w", err)
	}
	return req, nil
}

// sessionKey identifies the presenter session a request belongs to: the
// explicit session header, then the token subject, then the client address.
func sessionKey(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(sessionHeader)); id != "" {
		return "session:" + id
	}
	if user := requestUser(c); user != "" {
		return "user:" + user
	}
	return "ip:" + c.RealIP()
}

func requestUser(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return ""
	}
	sub, err := getSubject(token)
	if err != nil {
		return ""
	}
	return sub
}

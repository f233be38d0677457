package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dpup/prefab/errors"
	"google.golang.org/grpc/codes"

	"github.com/dpup/turnbyturn/internal/lib/geo"
	"github.com/dpup/turnbyturn/internal/lib/routing"
	"github.com/dpup/turnbyturn/internal/navigation"
)

// fieldMask is required by the Routes API; requests without one are rejected.
const fieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline,routes.legs.polyline.encodedPolyline"

// HTTPDoer is the subset of *http.Client the planner uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches drivable routes from the Google Routes API v2 and turns them into
// route plans the navigator accepts.
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
}

// Directions is a planned route plus the planner's own estimates.
type Directions struct {
	Plan           navigation.RoutePlan
	DistanceMeters int32
	Duration       time.Duration
}

// NewClient creates a Routes API client
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTPDoer(apiKey, baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTPDoer creates a client that sends requests through doer.
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: doer,
		baseURL:    baseURL,
	}
}

// ComputeDirections plans a drive from origin to destination through the intermediate
// stops, in order. Each intermediate becomes a waypoint on the returned plan.
func (c *Client) ComputeDirections(ctx context.Context, id string, origin, destination geo.Point, intermediates ...geo.Point) (*Directions, error) {
	body := routesRequest{
		Origin:            location(origin),
		Destination:       location(destination),
		TravelMode:        "DRIVE",
		RoutingPreference: "TRAFFIC_AWARE",
		PolylineQuality:   "HIGH_QUALITY",
	}
	for _, p := range intermediates {
		body.Intermediates = append(body.Intermediates, location(p))
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/directions/v2:computeRoutes", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewC(fmt.Errorf("failed to execute request: %w", err), codes.Unavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewC("routes api rate limit exceeded", codes.ResourceExhausted)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, errors.NewC(fmt.Sprintf("routes api error %d: %s", resp.StatusCode, msg), codes.Unavailable)
	}

	var response routesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Routes) == 0 {
		return nil, errors.NewC("no routes found in response", codes.NotFound)
	}

	route := response.Routes[0]
	plan, err := planFromRoute(id, route, len(intermediates))
	if err != nil {
		return nil, err
	}

	duration, err := time.ParseDuration(route.Duration)
	if err != nil && route.Duration != "" {
		return nil, fmt.Errorf("failed to parse duration %q: %w", route.Duration, err)
	}

	return &Directions{
		Plan:           plan,
		DistanceMeters: route.DistanceMeters,
		Duration:       duration,
	}, nil
}

// planFromRoute stitches the leg polylines together so that each intermediate stop
// lands on the vertex where one leg ends and the next begins.
func planFromRoute(id string, route googleRoute, stops int) (navigation.RoutePlan, error) {
	if stops == 0 || len(route.Legs) == 0 {
		if route.Polyline.EncodedPolyline == "" {
			return navigation.RoutePlan{}, errors.NewC("route has no polyline", codes.NotFound)
		}
		return navigation.RoutePlan{ID: id, EncodedPolyline: route.Polyline.EncodedPolyline}, nil
	}
	if len(route.Legs) != stops+1 {
		return navigation.RoutePlan{}, fmt.Errorf("expected %d legs for %d stops, got %d", stops+1, stops, len(route.Legs))
	}

	var points []geo.Point
	var waypoints []routing.Waypoint
	for i, leg := range route.Legs {
		pts, err := geo.DecodePolyline(leg.Polyline.EncodedPolyline)
		if err != nil {
			return navigation.RoutePlan{}, fmt.Errorf("leg %d: %w", i, err)
		}
		if len(pts) == 0 {
			return navigation.RoutePlan{}, fmt.Errorf("leg %d has no points", i)
		}
		if len(points) > 0 && pts[0] == points[len(points)-1] {
			pts = pts[1:]
		}
		points = append(points, pts...)
		if i < len(route.Legs)-1 {
			end := len(points) - 1
			waypoints = append(waypoints, routing.Waypoint{Point: points[end], RouteIndex: end})
		}
	}
	return navigation.RoutePlan{ID: id, Points: points, Waypoints: waypoints}, nil
}

func location(p geo.Point) routesLocation {
	var l routesLocation
	l.Location.LatLng.Latitude = p.Latitude
	l.Location.LatLng.Longitude = p.Longitude
	return l
}

type routesRequest struct {
	Origin            routesLocation   `json:"origin"`
	Destination       routesLocation   `json:"destination"`
	Intermediates     []routesLocation `json:"intermediates,omitempty"`
	TravelMode        string           `json:"travelMode"`
	RoutingPreference string           `json:"routingPreference"`
	PolylineQuality   string           `json:"polylineQuality"`
}

type routesLocation struct {
	Location struct {
		LatLng struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"latLng"`
	} `json:"location"`
}

type routesResponse struct {
	Routes []googleRoute `json:"routes"`
}

type googleRoute struct {
	Duration       string         `json:"duration"`
	DistanceMeters int32          `json:"distanceMeters"`
	Polyline       googlePolyline `json:"polyline"`
	Legs           []googleLeg    `json:"legs"`
}

type googleLeg struct {
	Polyline googlePolyline `json:"polyline"`
}

type googlePolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}

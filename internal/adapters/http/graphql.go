package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/tbuseth/maquette/internal/core/domain"
	"github.com/tbuseth/maquette/internal/pkg/geospatial"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
		},
	})

	settingsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TerrainSettings",
		Fields: graphql.Fields{
			"plan_size":        &graphql.Field{Type: graphql.Float},
			"base_depth_pct":   &graphql.Field{Type: graphql.Float},
			"exaggeration":     &graphql.Field{Type: graphql.Float},
			"resolution_cap":   &graphql.Field{Type: graphql.Int},
			"contour_interval": &graphql.Field{Type: graphql.Float},
			"major_every":      &graphql.Field{Type: graphql.Int},
			"max_labels":       &graphql.Field{Type: graphql.Int},
			"ellipse_segments": &graphql.Field{Type: graphql.Int},
			"palette":          &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	dioramaType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Diorama",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.String},
			"name":       &graphql.Field{Type: graphql.String},
			"shape":      &graphql.Field{Type: graphql.String},
			"bounds":     &graphql.Field{Type: boundsType},
			"settings":   &graphql.Field{Type: settingsType},
			"created_at": &graphql.Field{Type: graphql.DateTime},
			"updated_at": &graphql.Field{Type: graphql.DateTime},
		},
	})

	lodStateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LODState",
		Fields: graphql.Fields{
			"dem_zoom":       &graphql.Field{Type: graphql.Int},
			"imagery_zoom":   &graphql.Field{Type: graphql.Int},
			"resolution_cap": &graphql.Field{Type: graphql.Int},
			"phase":          &graphql.Field{Type: graphql.String},
			"distance_ratio": &graphql.Field{Type: graphql.Float},
			"checked_at":     &graphql.Field{Type: graphql.DateTime},
		},
	})

	dimensionsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Dimensions",
		Fields: graphql.Fields{
			"width_meters":  &graphql.Field{Type: graphql.Float},
			"height_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	dioramaViewType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DioramaView",
		Fields: graphql.Fields{
			"diorama":         &graphql.Field{Type: dioramaType},
			"dimensions":      &graphql.Field{Type: dimensionsType},
			"lod":             &graphql.Field{Type: lodStateType},
			"grid_version":    &graphql.Field{Type: graphql.Int},
			"mesh_version":    &graphql.Field{Type: graphql.Int},
			"contour_version": &graphql.Field{Type: graphql.Int},
			"failed_tiles":    &graphql.Field{Type: graphql.Int},
			"built_at":        &graphql.Field{Type: graphql.DateTime},
		},
	})

	tileIndexType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileIndex",
		Fields: graphql.Fields{
			"x": &graphql.Field{Type: graphql.Int},
			"y": &graphql.Field{Type: graphql.Int},
			"z": &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"dioramas": &graphql.Field{
				Type:        graphql.NewList(dioramaType),
				Description: "List all registered dioramas",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Dioramas.List(p.Context)
				},
			},
			"diorama": &graphql.Field{
				Type:        dioramaViewType,
				Description: "Get a diorama with dimensions, LOD state and snapshot versions",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					view, err := deps.Dioramas.Get(p.Context, id)
					if err != nil {
						return nil, err
					}
					if view == nil {
						return nil, nil
					}
					return view, nil
				},
			},
			"elevationAt": &graphql.Field{
				Type:        graphql.Float,
				Description: "Bilinear height lookup from a diorama's current grid, in meters",
				Args: graphql.FieldConfigArgument{
					"id":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					return deps.Dioramas.ElevationAt(id, lat, lon)
				},
			},
			"tileIndex": &graphql.Field{
				Type:        tileIndexType,
				Description: "Slippy-map tile containing a coordinate at a zoom level",
				Args: graphql.FieldConfigArgument{
					"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					zoom := p.Args["zoom"].(int)
					if zoom < 0 || zoom > 22 {
						return nil, fmt.Errorf("zoom %d out of range", zoom)
					}
					x, y := geospatial.TileForGeo(lat, lon, zoom)
					return domain.TileIndex{X: x, Y: y, Z: zoom}, nil
				},
			},
			"lodState": &graphql.Field{
				Type:        lodStateType,
				Description: "Current level-of-detail selection for a diorama",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					view, err := deps.Dioramas.Get(p.Context, id)
					if err != nil {
						return nil, err
					}
					if view == nil {
						return nil, fmt.Errorf("unknown diorama %s", id)
					}
					return view.LOD, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}

// Package neo4j maintains the concept relation graph harvested from
// explanations: flagged concepts become nodes, related_concepts become
// RELATED_TO edges.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/clarifai/backend/pkg/circuitbreaker"
	"github.com/clarifai/backend/pkg/logger"
	"github.com/clarifai/backend/pkg/retry"
)

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// UpsertConcept merges a concept node, bumping its flag count when it
// already exists.
func (c *Client) UpsertConcept(ctx context.Context, name string) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (c:Concept {name: $name})
			ON CREATE SET c.flag_count = 1, c.created_at = timestamp()
			ON MATCH SET c.flag_count = c.flag_count + 1
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"name": name,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert concept: %w", err)
		}

		logger.Debug("Concept upserted in graph", zap.String("name", name))
		return nil
	})
}

// RelateConcepts merges RELATED_TO edges from a flagged concept to the
// concepts its explanation mentioned.
func (c *Client) RelateConcepts(ctx context.Context, name string, related []string) error {
	if len(related) == 0 {
		return nil
	}

	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (c:Concept {name: $name})
			ON CREATE SET c.flag_count = 0, c.created_at = timestamp()
			WITH c
			UNWIND $related AS other
			MERGE (o:Concept {name: other})
			ON CREATE SET o.flag_count = 0, o.created_at = timestamp()
			MERGE (c)-[r:RELATED_TO]->(o)
			SET r.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"name":    name,
			"related": related,
		})
		if err != nil {
			return fmt.Errorf("failed to relate concepts: %w", err)
		}

		logger.Debug("Concept relations stored",
			zap.String("name", name),
			zap.Int("related", len(related)),
		)
		return nil
	})
}

// RelatedConcepts returns the neighbors of a concept, most frequently
// flagged first.
func (c *Client) RelatedConcepts(ctx context.Context, name string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var names []string
	err := c.cb.Execute(ctx, func() error {
		out, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]string, error) {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return queryRelated(ctx, session, name, limit)
		})
		if err != nil {
			return err
		}
		names = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	return names, nil
}

func queryRelated(ctx context.Context, session neo4j.SessionWithContext, name string, limit int) ([]string, error) {
	query := `
		MATCH (c:Concept {name: $name})-[:RELATED_TO]-(o:Concept)
		RETURN DISTINCT o.name AS name, o.flag_count AS flags
		ORDER BY flags DESC, name
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"name":  name,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query related concepts: %w", err)
	}

	var names []string
	for result.Next(ctx) {
		record := result.Record()
		if v, ok := record.Get("name"); ok {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
	}

	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return names, nil
}

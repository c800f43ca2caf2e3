package datasource

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/skillforge/engine/pkg/credentials"
)

// queryMongo runs an aggregation pipeline against the collection named in
// desc.Extra["collection"]. query is the pipeline as an extended-JSON array
// literal (e.g. `[{"$match":{"status":"open"}}]`), consistent with the
// data_query skill author writing one query string regardless of backend.
func queryMongo(ctx context.Context, desc *credentials.ConnectionDescriptor, query string, params map[string]any) (*Result, error) {
	database, _ := desc.Extra["database"].(string)
	collection, _ := desc.Extra["collection"].(string)
	if database == "" || collection == "" {
		return nil, fmt.Errorf("datasource: mongodb connection requires extra.database and extra.collection")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(desc.DSN))
	if err != nil {
		return nil, fmt.Errorf("datasource: connect mongo: %w", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	var pipeline bson.A
	if err := bson.UnmarshalExtJSON([]byte(query), true, &pipeline); err != nil {
		return nil, fmt.Errorf("datasource: decode mongo aggregation pipeline: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("datasource: run mongo aggregation: %w", err)
	}
	defer cur.Close(ctx)

	var out []map[string]any
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("datasource: decode mongo document: %w", err)
		}
		out = append(out, map[string]any(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("datasource: mongo cursor iteration: %w", err)
	}

	return &Result{Rows: out, RowCount: len(out)}, nil
}

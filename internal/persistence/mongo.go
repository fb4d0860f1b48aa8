package persistence

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/poiesis-tes/poiesis/internal/logging"
	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
	"github.com/poiesis-tes/poiesis/internal/task"
	"github.com/poiesis-tes/poiesis/internal/tes"
)

// MongoPort implements Port on top of go.mongodb.org/mongo-driver,
// grounded on original_source/poiesis/repository/mongo.py's MongoDBClient:
// one `tasks` collection indexed on id, user_id and ordinal, one `services`
// collection for GET /service-info's backing document.
type MongoPort struct {
	client    *mongo.Client
	tasks     *mongo.Collection
	services  *mongo.Collection
	counters  *mongo.Collection
	log       *logging.Logger
}

// NewMongoPort connects to uri, selects database, ensures the indexes the
// engine relies on, and returns a ready Port.
func NewMongoPort(ctx context.Context, uri, database string, log *logging.Logger) (*MongoPort, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.StorageError, "connect to mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.StorageError, "ping mongo", err)
	}

	db := client.Database(database)
	tasks := db.Collection("tasks")
	_, err = tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "ordinal", Value: 1}}},
	})
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.StorageError, "create task indexes", err)
	}

	return &MongoPort{
		client:   client,
		tasks:    tasks,
		services: db.Collection("services"),
		counters: db.Collection("counters"),
		log:      log,
	}, nil
}

func (p *MongoPort) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}

// nextOrdinal atomically increments the insertion-order counter, the
// classic Mongo findAndModify counter pattern.
func (p *MongoPort) nextOrdinal(ctx context.Context) (int64, error) {
	res := p.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": "tasks"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, poiesiserr.Wrap(poiesiserr.StorageError, "increment task counter", err)
	}
	return doc.Seq, nil
}

func (p *MongoPort) InsertTask(ctx context.Context, doc *task.Doc) (string, error) {
	ordinal, err := p.nextOrdinal(ctx)
	if err != nil {
		return "", err
	}
	doc.Ordinal = ordinal
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt

	if _, err := p.tasks.InsertOne(ctx, doc); err != nil {
		return "", poiesiserr.Wrap(poiesiserr.StorageError, "insert task", err)
	}
	return doc.Task.ID, nil
}

func (p *MongoPort) GetTask(ctx context.Context, taskID string) (*task.Doc, error) {
	var doc task.Doc
	err := p.tasks.FindOne(ctx, bson.M{"id": taskID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, poiesiserr.New(poiesiserr.NotFound, fmt.Sprintf("task %s not found", taskID))
	}
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.StorageError, "get task", err)
	}
	return &doc, nil
}

func (p *MongoPort) UpdateTaskState(ctx context.Context, taskID string, newState tes.State) error {
	_, err := p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$set": bson.M{"state": newState, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "update task state", err)
	}
	return nil
}

func (p *MongoPort) AppendTaskLog(ctx context.Context, taskID string) error {
	entry := tes.TaskLog{StartTime: time.Now().UTC().Format(time.RFC3339)}
	_, err := p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$push": bson.M{"logs": entry}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "append task log", err)
	}
	return nil
}

func (p *MongoPort) AppendExecutorLog(ctx context.Context, taskID string) error {
	entry := tes.ExecutorLog{StartTime: time.Now().UTC().Format(time.RFC3339), ExitCode: 0}
	doc, err := p.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	lastIdx := len(doc.Task.Logs) - 1
	if lastIdx < 0 {
		return poiesiserr.New(poiesiserr.StorageError, "append executor log: no task log to append into")
	}
	field := fmt.Sprintf("logs.%d.logs", lastIdx)
	_, err = p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$push": bson.M{field: entry}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "append executor log", err)
	}
	return nil
}

func (p *MongoPort) SetTaskLogEnd(ctx context.Context, taskID string, when time.Time) error {
	doc, err := p.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	lastIdx := len(doc.Task.Logs) - 1
	if lastIdx < 0 {
		return poiesiserr.New(poiesiserr.StorageError, "set task log end: no task log present")
	}
	field := fmt.Sprintf("logs.%d.end_time", lastIdx)
	_, err = p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$set": bson.M{field: when.UTC().Format(time.RFC3339), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "set task log end", err)
	}
	return nil
}

func (p *MongoPort) SetSystemLogs(ctx context.Context, taskID string, lines []string) error {
	doc, err := p.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	lastIdx := len(doc.Task.Logs) - 1
	if lastIdx < 0 {
		return poiesiserr.New(poiesiserr.StorageError, "set system logs: no task log present")
	}
	field := fmt.Sprintf("logs.%d.system_logs", lastIdx)
	_, err = p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$set": bson.M{field: lines, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "set system logs", err)
	}
	return nil
}

// UpdateExecutorLog locates the attempt by parsing the task id out of the
// executor name te-<taskId>-<idx> and writes logs[-1].logs[idx], per
// spec.md §4.1.
func (p *MongoPort) UpdateExecutorLog(ctx context.Context, executorName string, phase ExecutorPhase, stdout, stderr string) error {
	taskID, idx, err := task.DecodeExecutorName(executorName)
	if err != nil {
		return err
	}
	doc, err := p.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	lastIdx := len(doc.Task.Logs) - 1
	if lastIdx < 0 {
		return poiesiserr.New(poiesiserr.StorageError, "update executor log: no task log present")
	}

	exitCode := 1
	if phase == PhaseSucceeded {
		exitCode = 0
	}

	prefix := fmt.Sprintf("logs.%d.logs.%d", lastIdx, idx)
	_, err = p.tasks.UpdateOne(ctx,
		bson.M{"id": taskID},
		bson.M{"$set": bson.M{
			prefix + ".end_time":  time.Now().UTC().Format(time.RFC3339),
			prefix + ".exit_code": exitCode,
			prefix + ".stdout":    stdout,
			prefix + ".stderr":    stderr,
			"updated_at":          time.Now().UTC(),
		}},
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "update executor log", err)
	}
	return nil
}

// ListTasks implements keyset pagination by insertion-order ordinal
// (spec.md §4.1, §6). pageToken is an opaque base64 encoding of the last
// ordinal seen.
func (p *MongoPort) ListTasks(ctx context.Context, filter tes.ListFilter, pageSize int, pageToken string) ([]*task.Doc, string, error) {
	query := bson.M{}
	if filter.NamePrefix != "" {
		query["name"] = bson.M{"$regex": "^" + strings.ReplaceAll(filter.NamePrefix, `\`, `\\`)}
	}
	if filter.State != "" {
		query["state"] = filter.State
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	for i, key := range filter.TagKey {
		field := "tags." + key
		if i < len(filter.TagValue) && filter.TagValue[i] != "" {
			query[field] = filter.TagValue[i]
		} else {
			query[field] = bson.M{"$exists": true}
		}
	}

	if pageToken != "" {
		ordinal, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", poiesiserr.Wrap(poiesiserr.BadRequest, "invalid page token", err)
		}
		query["ordinal"] = bson.M{"$gt": ordinal}
	}

	if pageSize <= 0 {
		pageSize = 256
	}

	cur, err := p.tasks.Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "ordinal", Value: 1}}).SetLimit(int64(pageSize)))
	if err != nil {
		return nil, "", poiesiserr.Wrap(poiesiserr.StorageError, "list tasks", err)
	}
	defer cur.Close(ctx)

	var docs []*task.Doc
	for cur.Next(ctx) {
		var d task.Doc
		if err := cur.Decode(&d); err != nil {
			return nil, "", poiesiserr.Wrap(poiesiserr.StorageError, "decode task", err)
		}
		docs = append(docs, &d)
	}

	nextToken := ""
	if len(docs) == pageSize {
		nextToken = encodePageToken(docs[len(docs)-1].Ordinal)
	}
	return docs, nextToken, nil
}

func (p *MongoPort) GetServiceInfo(ctx context.Context) (*tes.ServiceInfo, error) {
	var info tes.ServiceInfo
	err := p.services.FindOne(ctx, bson.M{"id": "poiesis"}).Decode(&info)
	if err == mongo.ErrNoDocuments {
		return nil, poiesiserr.New(poiesiserr.NotFound, "service info not set")
	}
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.StorageError, "get service info", err)
	}
	return &info, nil
}

func (p *MongoPort) PutServiceInfo(ctx context.Context, info *tes.ServiceInfo) error {
	_, err := p.services.UpdateOne(ctx,
		bson.M{"id": "poiesis"},
		bson.M{"$set": info},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.StorageError, "put service info", err)
	}
	return nil
}

func encodePageToken(ordinal int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(ordinal, 10)))
}

func decodePageToken(token string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

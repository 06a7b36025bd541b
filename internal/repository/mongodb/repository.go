package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
	"github.com/mamadbah2/restock/internal/repository"
)

const (
	ordersCollection    = "purchase_orders"
	inventoryCollection = "inventory_items"
	tasksCollection     = "side_effect_tasks"
	movementsCollection = "inventory_movements"
)

// MongoDBRepository implements the store, outbox and movement log on MongoDB.
type MongoDBRepository struct {
	client    *mongo.Client
	db        *mongo.Database
	txTimeout time.Duration
	logger    *zap.Logger
}

var (
	_ repository.Store       = (*MongoDBRepository)(nil)
	_ repository.TaskQueue   = (*MongoDBRepository)(nil)
	_ repository.MovementLog = (*MongoDBRepository)(nil)
)

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri, dbName string, txTimeout time.Duration, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client:    client,
		db:        client.Database(dbName),
		txTimeout: txTimeout,
		logger:    logger,
	}, nil
}

// EnsureIndexes creates the indexes the delivery queries rely on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.db.Collection(inventoryCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "location_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create inventory index: %w", err)
	}
	// items written before name_key existed are left out of the constraint
	if _, err := r.db.Collection(inventoryCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "location_id", Value: 1}, {Key: "name_key", Value: 1}},
		Options: options.Index().
			SetName("uniq_branch_item_name").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"name_key": bson.M{"$type": "string"}}),
	}); err != nil {
		return fmt.Errorf("create inventory name index: %w", err)
	}
	if _, err := r.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create order index: %w", err)
	}
	if _, err := r.db.Collection(tasksCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create task index: %w", err)
	}
	return nil
}

// RunInTransaction runs fn inside a single multi-document transaction. The
// transaction is attempted once; conflicts and quota errors are returned to
// the caller instead of being retried here.
func (r *MongoDBRepository) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if r.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.txTimeout)
		defer cancel()
	}

	session, err := r.client.StartSession()
	if err != nil {
		return translate(fmt.Errorf("start session: %w", err))
	}
	defer session.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		if err := session.StartTransaction(txOpts); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		if err := fn(sc, &mongoTx{db: r.db}); err != nil {
			if abortErr := session.AbortTransaction(context.Background()); abortErr != nil {
				r.logger.Warn("abort transaction failed", zap.Error(abortErr))
			}
			return err
		}
		if err := session.CommitTransaction(sc); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
	return translate(err)
}

// GetOrder loads a tenant's purchase order.
func (r *MongoDBRepository) GetOrder(ctx context.Context, tenantID, orderID string) (*models.PurchaseOrder, error) {
	return findOrder(ctx, r.db, tenantID, orderID)
}

// ListInventory loads every inventory item of a branch.
func (r *MongoDBRepository) ListInventory(ctx context.Context, tenantID, locationID string) ([]models.InventoryItem, error) {
	return findInventory(ctx, r.db, bson.M{"tenant_id": tenantID, "location_id": locationID})
}

// UpdateInventoryUnit relabels an item's canonical unit without touching quantities.
func (r *MongoDBRepository) UpdateInventoryUnit(ctx context.Context, tenantID, locationID, itemID, unit string, at time.Time) error {
	res, err := r.db.Collection(inventoryCollection).UpdateOne(ctx,
		bson.M{"_id": itemID, "tenant_id": tenantID, "location_id": locationID},
		bson.M{"$set": bson.M{"unit": unit, "updated_at": at}},
	)
	if err != nil {
		return translate(fmt.Errorf("update unit of %s: %w", itemID, err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("inventory item %s: %w", itemID, models.ErrNotFound)
	}
	return nil
}

// InsertInventoryItem creates a new inventory item.
// A second item with the same normalized name in the branch is a conflict.
func (r *MongoDBRepository) InsertInventoryItem(ctx context.Context, item models.InventoryItem) error {
	item.NameKey = models.NormalizeName(item.Name)
	if _, err := r.db.Collection(inventoryCollection).InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("inventory item %s: %w", item.ID, models.ErrConflict)
		}
		return translate(fmt.Errorf("insert inventory item: %w", err))
	}
	return nil
}

// InsertOrder stores a purchase order. Orders are normally created upstream;
// this exists for seeding and the operator CLI.
func (r *MongoDBRepository) InsertOrder(ctx context.Context, order models.PurchaseOrder) error {
	if _, err := r.db.Collection(ordersCollection).InsertOne(ctx, order); err != nil {
		return translate(fmt.Errorf("insert purchase order: %w", err))
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

type mongoTx struct {
	db *mongo.Database
}

func (t *mongoTx) GetOrder(ctx context.Context, tenantID, orderID string) (*models.PurchaseOrder, error) {
	return findOrder(ctx, t.db, tenantID, orderID)
}

func (t *mongoTx) GetInventoryItems(ctx context.Context, tenantID, locationID string, ids []string) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findInventory(ctx, t.db, bson.M{
		"tenant_id":   tenantID,
		"location_id": locationID,
		"_id":         bson.M{"$in": ids},
	})
}

func (t *mongoTx) ApplyInventoryUpdate(ctx context.Context, tenantID, locationID string, update models.InventoryUpdate, at time.Time) error {
	res, err := t.db.Collection(inventoryCollection).UpdateOne(ctx,
		bson.M{"_id": update.ItemID, "tenant_id": tenantID, "location_id": locationID},
		bson.M{"$set": bson.M{
			"current_stock": update.NewStock,
			"cost_per_unit": update.NewCost,
			"status":        update.Status,
			"updated_at":    at,
		}},
	)
	if err != nil {
		return fmt.Errorf("update inventory item %s: %w", update.ItemID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("inventory item %s: %w", update.ItemID, models.ErrNotFound)
	}
	return nil
}

func (t *mongoTx) ApplyOrderDelivery(ctx context.Context, d repository.OrderDelivery) error {
	filter := bson.M{
		"_id":       d.OrderID,
		"tenant_id": d.TenantID,
		"status":    d.PreviousStatus,
	}
	if d.Event.ID != "" {
		filter["deliveries.id"] = bson.M{"$ne": d.Event.ID}
	}

	res, err := t.db.Collection(ordersCollection).UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{
			"items":        d.Items,
			"status":       d.Status,
			"delivered_by": d.DeliveredBy,
			"delivered_at": d.DeliveredAt,
			"updated_at":   d.DeliveredAt,
		},
		"$push": bson.M{"deliveries": d.Event},
	})
	if err != nil {
		return fmt.Errorf("update purchase order %s: %w", d.OrderID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("purchase order %s changed during delivery: %w", d.OrderID, models.ErrConflict)
	}
	return nil
}

func findOrder(ctx context.Context, db *mongo.Database, tenantID, orderID string) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := db.Collection(ordersCollection).FindOne(ctx, bson.M{"_id": orderID, "tenant_id": tenantID}).Decode(&order)
	if err != nil {
		return nil, translate(fmt.Errorf("find purchase order %s: %w", orderID, err))
	}
	return &order, nil
}

func findInventory(ctx context.Context, db *mongo.Database, filter bson.M) ([]models.InventoryItem, error) {
	cursor, err := db.Collection(inventoryCollection).Find(ctx, filter)
	if err != nil {
		return nil, translate(fmt.Errorf("find inventory: %w", err))
	}
	defer cursor.Close(ctx)

	var items []models.InventoryItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, translate(fmt.Errorf("decode inventory: %w", err))
	}
	return items, nil
}

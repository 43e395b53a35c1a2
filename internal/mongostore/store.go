package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/affordindia/affordindia-sub004/internal/apperr"
	"github.com/affordindia/affordindia-sub004/models"
)

const (
	ordersCollection    = "orders"
	customersCollection = "customers"
)

type orderDocument struct {
	ID            string               `bson:"_id"`
	UserID        string               `bson:"user"`
	Items         []itemDocument       `bson:"items"`
	Status        models.OrderStatus   `bson:"status"`
	PaymentStatus models.PaymentStatus `bson:"paymentStatus"`
	Total         primitive.Decimal128 `bson:"total"`
	CreatedAt     time.Time            `bson:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt,omitempty"`
	Shipment      *shipmentDocument    `bson:"shipment,omitempty"`
}

type itemDocument struct {
	ProductID string               `bson:"product"`
	Quantity  int                  `bson:"quantity"`
	Price     primitive.Decimal128 `bson:"price"`
}

type shipmentDocument struct {
	ShipmentID  string `bson:"shipmentId"`
	AWBCode     string `bson:"awbCode,omitempty"`
	CourierName string `bson:"courierName,omitempty"`
}

type customerDocument struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

// Store keeps orders in MongoDB. Transitions are conditional updates filtered
// on the value read, so a concurrent writer makes the update miss instead of
// overwriting.
type Store struct {
	database  *mongo.Database
	orders    *mongo.Collection
	customers *mongo.Collection
	logger    *zap.SugaredLogger
}

func Connect(ctx context.Context, uri, database string, logger *zap.SugaredLogger) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Infow("connected to mongodb", "database", database)
	return New(client.Database(database), logger), nil
}

func New(database *mongo.Database, logger *zap.SugaredLogger) *Store {
	return &Store{
		database:  database,
		orders:    database.Collection(ordersCollection),
		customers: database.Collection(customersCollection),
		logger:    logger,
	}
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	cursor, err := s.orders.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var docs []orderDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}

	customers, err := s.lookupCustomers(ctx, docs)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := toOrder(doc, customers)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (models.Order, error) {
	doc, err := s.findOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	return s.resolve(ctx, doc)
}

func (s *Store) SetStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	doc, err := s.findOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if err = models.ValidateStatusTransition(doc.Status, status, len(doc.Items)); err != nil {
		return models.Order{}, err
	}

	filter := bson.M{"_id": idFilter(id), "status": doc.Status}
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}}
	updated, err := s.update(ctx, id, filter, update)
	if err != nil {
		return models.Order{}, err
	}
	s.logger.Infow("order status changed", "order_id", id, "from", doc.Status, "to", status)
	return s.resolve(ctx, updated)
}

func (s *Store) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (models.Order, error) {
	doc, err := s.findOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if err = models.ValidatePaymentTransition(doc.PaymentStatus, status); err != nil {
		return models.Order{}, err
	}

	filter := bson.M{"_id": idFilter(id), "paymentStatus": doc.PaymentStatus}
	update := bson.M{"$set": bson.M{"paymentStatus": status, "updatedAt": time.Now().UTC()}}
	updated, err := s.update(ctx, id, filter, update)
	if err != nil {
		return models.Order{}, err
	}
	s.logger.Infow("payment status changed", "order_id", id, "from", doc.PaymentStatus, "to", status)
	return s.resolve(ctx, updated)
}

func (s *Store) AttachShipment(ctx context.Context, id string, shipment models.Shipment) (models.Order, error) {
	doc, err := s.findOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if doc.Status == models.OrderCancelled {
		return models.Order{}, apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("order %s is cancelled", id))
	}

	var existing models.Shipment
	filter := bson.M{"_id": idFilter(id)}
	if doc.Shipment == nil {
		filter["shipment"] = bson.M{"$exists": false}
	} else {
		existing = models.Shipment(*doc.Shipment)
		filter["shipment.shipmentId"] = existing.ShipmentID
		filter["shipment.awbCode"] = optional(existing.AWBCode)
		filter["shipment.courierName"] = optional(existing.CourierName)
	}

	merged, err := existing.Merge(shipment)
	if err != nil {
		return models.Order{}, err
	}

	update := bson.M{"$set": bson.M{"shipment": shipmentDocument(merged), "updatedAt": time.Now().UTC()}}
	updated, err := s.update(ctx, id, filter, update)
	if err != nil {
		return models.Order{}, err
	}
	return s.resolve(ctx, updated)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.orders.DeleteOne(ctx, bson.M{"_id": idFilter(id)})
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	s.logger.Infow("order deleted", "order_id", id)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.database.Client().Ping(ctx, nil)
}

func (s *Store) Close() error {
	return s.database.Client().Disconnect(context.Background())
}

func (s *Store) findOrder(ctx context.Context, id string) (orderDocument, error) {
	var doc orderDocument
	err := s.orders.FindOne(ctx, bson.M{"_id": idFilter(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orderDocument{}, notFound(id)
	}
	if err != nil {
		return orderDocument{}, fmt.Errorf("failed to get order: %w", err)
	}
	return doc, nil
}

// update applies a conditional update. A miss means the order changed or
// disappeared after it was read.
func (s *Store) update(ctx context.Context, id string, filter, update bson.M) (orderDocument, error) {
	var doc orderDocument
	err := s.orders.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orderDocument{}, apperr.New(apperr.KindInvalidTransition, fmt.Sprintf("order %s changed concurrently", id))
	}
	if err != nil {
		return orderDocument{}, fmt.Errorf("failed to update order: %w", err)
	}
	return doc, nil
}

func (s *Store) resolve(ctx context.Context, doc orderDocument) (models.Order, error) {
	customers := make(map[string]customerDocument, 1)
	var c customerDocument
	err := s.customers.FindOne(ctx, bson.M{"_id": idFilter(doc.UserID)}).Decode(&c)
	switch {
	case err == nil:
		customers[c.ID] = c
	case !errors.Is(err, mongo.ErrNoDocuments):
		return models.Order{}, fmt.Errorf("failed to get customer: %w", err)
	}
	return toOrder(doc, customers)
}

func (s *Store) lookupCustomers(ctx context.Context, docs []orderDocument) (map[string]customerDocument, error) {
	customers := make(map[string]customerDocument)
	if len(docs) == 0 {
		return customers, nil
	}

	seen := make(map[string]struct{}, len(docs))
	ids := make(bson.A, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.UserID]; ok {
			continue
		}
		seen[doc.UserID] = struct{}{}
		ids = append(ids, idValues(doc.UserID)...)
	}

	cursor, err := s.customers.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	var found []customerDocument
	if err = cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode customers: %w", err)
	}
	for _, c := range found {
		customers[c.ID] = c
	}
	return customers, nil
}

func toOrder(doc orderDocument, customers map[string]customerDocument) (models.Order, error) {
	total, err := decimal.NewFromString(doc.Total.String())
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s has malformed total: %w", doc.ID, err)
	}

	order := models.Order{
		ID:            doc.ID,
		User:          models.UserRef{ID: doc.UserID},
		Items:         make([]models.OrderItem, 0, len(doc.Items)),
		Status:        doc.Status,
		PaymentStatus: doc.PaymentStatus,
		Total:         total,
		CreatedAt:     doc.CreatedAt,
	}
	if c, ok := customers[doc.UserID]; ok {
		order.User = models.UserRef{ID: c.ID, Name: c.Name, Email: c.Email, Resolved: true}
	}
	for _, it := range doc.Items {
		price, err := decimal.NewFromString(it.Price.String())
		if err != nil {
			return models.Order{}, fmt.Errorf("order %s has malformed price: %w", doc.ID, err)
		}
		order.Items = append(order.Items, models.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: price})
	}
	if doc.Shipment != nil {
		shipment := models.Shipment(*doc.Shipment)
		order.Shipment = &shipment
	}
	return order, nil
}

// Decimal converts a money amount into its stored representation.
func Decimal(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

// optional matches a string field that is either equal to v or, when v is
// empty, absent.
func optional(v string) any {
	if v == "" {
		return bson.M{"$in": bson.A{nil, ""}}
	}
	return v
}

// idFilter matches an _id stored either as an ObjectID or as a plain string.
// Ids read back from either form decode to the same hex string.
func idFilter(id string) any {
	values := idValues(id)
	if len(values) == 1 {
		return id
	}
	return bson.M{"$in": values}
}

func idValues(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{oid, id}
	}
	return bson.A{id}
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, fmt.Sprintf("order %s not found", id))
}

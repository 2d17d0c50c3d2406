// Package storage provides DynamoDB-backed persistence for video assets,
// lesson progress, and the read-only course catalog, plus the S3 source
// archive and SQS operator events.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/amillerrr/lms-pipeline/pkg/models"
)

// Single-table key layout for video assets. The lesson key enforces the
// one-asset-per-lesson invariant; GSI1 supports lookup by remote video id.
const (
	assetSK     = "VIDEO"
	assetGSI1PK = "ASSET"
	gsi1Name    = "GSI1"
)

func lessonPK(lessonID string) string     { return fmt.Sprintf("LESSON#%s", lessonID) }
func remoteGSI1SK(remoteID string) string { return fmt.Sprintf("REMOTE#%s", remoteID) }

// AssetRepository stores one VideoAsset row per lesson in DynamoDB.
type AssetRepository struct {
	client    *dynamodb.Client
	tableName string
}

// NewAssetRepository creates an AssetRepository from an existing client.
func NewAssetRepository(client *dynamodb.Client, tableName string) (*AssetRepository, error) {
	if tableName == "" {
		return nil, errors.New("DynamoDB table name is required")
	}
	return &AssetRepository{client: client, tableName: tableName}, nil
}

// UpsertProcessing records a lesson's video as processing under a new remote
// video id. The write is a single upsert statement: re-ingesting a lesson
// swaps the remote id and resets the lifecycle, while the asset id and
// creation time survive. Derived fields from a previous encode are cleared.
func (r *AssetRepository) UpsertProcessing(ctx context.Context, lessonID, remoteVideoID, embedURL string) (*models.VideoAsset, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetSK},
		},
		UpdateExpression: aws.String(`
			SET remote_video_id = :rid,
			    #status = :status,
			    embed_url = :embed,
			    lesson_id = :lesson,
			    updated_at = :now,
			    gsi1pk = :g1pk,
			    gsi1sk = :g1sk,
			    asset_id = if_not_exists(asset_id, :aid),
			    created_at = if_not_exists(created_at, :now)
			REMOVE duration_seconds, thumbnail_url
		`),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid":    &types.AttributeValueMemberS{Value: remoteVideoID},
			":status": &types.AttributeValueMemberS{Value: string(models.AssetProcessing)},
			":embed":  &types.AttributeValueMemberS{Value: embedURL},
			":lesson": &types.AttributeValueMemberS{Value: lessonID},
			":now":    &types.AttributeValueMemberS{Value: now},
			":g1pk":   &types.AttributeValueMemberS{Value: assetGSI1PK},
			":g1sk":   &types.AttributeValueMemberS{Value: remoteGSI1SK(remoteVideoID)},
			":aid":    &types.AttributeValueMemberS{Value: uuid.New().String()},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert video asset: %w", err)
	}

	var asset models.VideoAsset
	if err := attributevalue.UnmarshalMap(out.Attributes, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video asset: %w", err)
	}

	return &asset, nil
}

// Get retrieves the asset for a lesson.
func (r *AssetRepository) Get(ctx context.Context, lessonID string) (*models.VideoAsset, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetSK},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get video asset: %w", err)
	}

	if result.Item == nil {
		return nil, models.ErrAssetNotFound
	}

	var asset models.VideoAsset
	if err := attributevalue.UnmarshalMap(result.Item, &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video asset: %w", err)
	}
	if !asset.Status.IsValid() {
		return nil, fmt.Errorf("asset for lesson %s carries unrecognized status %q", lessonID, asset.Status)
	}

	return &asset, nil
}

// SetSourceKey records where the raw upload was archived. The asset row
// must already exist.
func (r *AssetRepository) SetSourceKey(ctx context.Context, lessonID, key string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetSK},
		},
		UpdateExpression: aws.String("SET source_key = :key, updated_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: key},
			":now": &types.AttributeValueMemberS{Value: now},
		},
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrAssetNotFound
		}
		return fmt.Errorf("failed to record source key: %w", err)
	}

	return nil
}

// GetByRemoteID looks up an asset through the remote-id index.
func (r *AssetRepository) GetByRemoteID(ctx context.Context, remoteVideoID string) (*models.VideoAsset, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("gsi1pk = :pk AND gsi1sk = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: assetGSI1PK},
			":sk": &types.AttributeValueMemberS{Value: remoteGSI1SK(remoteVideoID)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query video asset by remote id: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, models.ErrAssetNotFound
	}

	var asset models.VideoAsset
	if err := attributevalue.UnmarshalMap(result.Items[0], &asset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal video asset: %w", err)
	}

	return &asset, nil
}

// MarkReady transitions the asset identified by remoteVideoID to ready with
// its derived metadata. The update is conditional on the row still carrying
// the same remote id, so a stale watcher cannot clobber a re-uploaded asset.
func (r *AssetRepository) MarkReady(ctx context.Context, remoteVideoID string, durationSeconds int, thumbnailURL string) error {
	asset, err := r.GetByRemoteID(ctx, remoteVideoID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(asset.LessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetSK},
		},
		UpdateExpression: aws.String(`
			SET #status = :status,
			    duration_seconds = :duration,
			    thumbnail_url = :thumbnail,
			    updated_at = :now
		`),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":    &types.AttributeValueMemberS{Value: string(models.AssetReady)},
			":duration":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", durationSeconds)},
			":thumbnail": &types.AttributeValueMemberS{Value: thumbnailURL},
			":now":       &types.AttributeValueMemberS{Value: now},
			":rid":       &types.AttributeValueMemberS{Value: remoteVideoID},
		},
		ConditionExpression: aws.String("remote_video_id = :rid"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrAssetNotFound
		}
		return fmt.Errorf("failed to mark asset ready: %w", err)
	}

	return nil
}

// MarkStalled parks the asset in the stalled state. The update only applies
// while the row is still processing the same remote video, so a completed or
// re-ingested asset is left alone.
func (r *AssetRepository) MarkStalled(ctx context.Context, remoteVideoID string) error {
	asset, err := r.GetByRemoteID(ctx, remoteVideoID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(asset.LessonID)},
			"sk": &types.AttributeValueMemberS{Value: assetSK},
		},
		UpdateExpression: aws.String("SET #status = :stalled, updated_at = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":stalled":    &types.AttributeValueMemberS{Value: string(models.AssetStalled)},
			":processing": &types.AttributeValueMemberS{Value: string(models.AssetProcessing)},
			":now":        &types.AttributeValueMemberS{Value: now},
			":rid":        &types.AttributeValueMemberS{Value: remoteVideoID},
		},
		ConditionExpression: aws.String("remote_video_id = :rid AND #status = :processing"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return models.ErrAssetNotFound
		}
		return fmt.Errorf("failed to mark asset stalled: %w", err)
	}

	return nil
}

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

const progressSKPrefix = "PROGRESS#"

func userPK(userID string) string       { return fmt.Sprintf("USER#%s", userID) }
func progressSK(lessonID string) string { return progressSKPrefix + lessonID }

// ProgressRepository stores per-user lesson completion rows. The table key is
// the (user, lesson) pair itself, so duplicate rows are impossible and every
// mutation is a single atomic statement.
type ProgressRepository struct {
	client    *dynamodb.Client
	tableName string
}

// NewProgressRepository creates a ProgressRepository from an existing client.
func NewProgressRepository(client *dynamodb.Client, tableName string) (*ProgressRepository, error) {
	if tableName == "" {
		return nil, errors.New("DynamoDB table name is required")
	}
	return &ProgressRepository{client: client, tableName: tableName}, nil
}

// Upsert records or refreshes a completion. Repeated calls for the same
// (user, lesson) pair refresh completed_at and never create a second row.
// courseID is always stored, validated by the caller against the hierarchy;
// it is informational on reads.
func (r *ProgressRepository) Upsert(ctx context.Context, userID, lessonID, courseID string) (*models.LessonProgress, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			"sk": &types.AttributeValueMemberS{Value: progressSK(lessonID)},
		},
		UpdateExpression: aws.String(`
			SET user_id = :user,
			    lesson_id = :lesson,
			    course_id = :course,
			    completed_at = :now,
			    updated_at = :now,
			    progress_id = if_not_exists(progress_id, :pid)
		`),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user":   &types.AttributeValueMemberS{Value: userID},
			":lesson": &types.AttributeValueMemberS{Value: lessonID},
			":course": &types.AttributeValueMemberS{Value: courseID},
			":now":    &types.AttributeValueMemberS{Value: now},
			":pid":    &types.AttributeValueMemberS{Value: uuid.New().String()},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert progress: %w", err)
	}

	var progress models.LessonProgress
	if err := attributevalue.UnmarshalMap(out.Attributes, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return &progress, nil
}

// Delete removes a completion row and reports whether one existed. The
// delete-returning-old shape makes toggle's check-then-act a single atomic
// statement.
func (r *ProgressRepository) Delete(ctx context.Context, userID, lessonID string) (bool, error) {
	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			"sk": &types.AttributeValueMemberS{Value: progressSK(lessonID)},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete progress: %w", err)
	}

	return len(out.Attributes) > 0, nil
}

// ListByUser returns every completion row for a user, across all courses.
// Course filtering is the caller's job, via the hierarchy, never via the
// stored course_id.
func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
				":prefix": &types.AttributeValueMemberS{Value: progressSKPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list progress: %w", err)
		}

		var page []models.LessonProgress
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress rows: %w", err)
		}
		rows = append(rows, page...)

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return rows, nil
}

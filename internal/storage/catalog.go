package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/amillerrr/lms-pipeline/pkg/models"
)

// Catalog key layout. These rows are owned by the course CRUD service; this
// repository only reads them.
const (
	lessonMetaSK   = "META"
	courseLessonSK = "LESSON#"
	enrollSKPrefix = "ENROLL#"
)

func coursePK(courseID string) string { return fmt.Sprintf("COURSE#%s", courseID) }

// CatalogRepository resolves the lesson/section/course hierarchy and
// enrollment, read-only.
type CatalogRepository struct {
	client    *dynamodb.Client
	tableName string
}

// NewCatalogRepository creates a CatalogRepository from an existing client.
func NewCatalogRepository(client *dynamodb.Client, tableName string) (*CatalogRepository, error) {
	if tableName == "" {
		return nil, errors.New("DynamoDB table name is required")
	}
	return &CatalogRepository{client: client, tableName: tableName}, nil
}

// ResolveCourseForLesson derives a lesson's owning course through the
// hierarchy. This is the authoritative join; denormalized copies elsewhere
// must not be trusted.
func (r *CatalogRepository) ResolveCourseForLesson(ctx context.Context, lessonID string) (string, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: lessonPK(lessonID)},
			"sk": &types.AttributeValueMemberS{Value: lessonMetaSK},
		},
		ProjectionExpression: aws.String("course_id"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve lesson: %w", err)
	}

	if result.Item == nil {
		return "", models.ErrLessonNotFound
	}

	attr, ok := result.Item["course_id"].(*types.AttributeValueMemberS)
	if !ok || attr.Value == "" {
		return "", models.ErrLessonNotFound
	}

	return attr.Value, nil
}

// LessonsInCourse lists every lesson reachable through the course's sections.
func (r *CatalogRepository) LessonsInCourse(ctx context.Context, courseID string) ([]string, error) {
	var lessonIDs []string
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: coursePK(courseID)},
				":prefix": &types.AttributeValueMemberS{Value: courseLessonSK},
			},
			ProjectionExpression: aws.String("lesson_id"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list course lessons: %w", err)
		}

		for _, item := range result.Items {
			if attr, ok := item["lesson_id"].(*types.AttributeValueMemberS); ok {
				lessonIDs = append(lessonIDs, attr.Value)
			}
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return lessonIDs, nil
}

// IsEnrolled reports whether the user holds an enrollment row for the course.
func (r *CatalogRepository) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: userPK(userID)},
			"sk": &types.AttributeValueMemberS{Value: enrollSKPrefix + courseID},
		},
		ProjectionExpression: aws.String("pk"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	return result.Item != nil, nil
}

package pharmacy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore is a RecordStore backed by two DynamoDB tables: patients keyed
// by id, medications keyed by canonical English name.
type DynamoStore struct {
	client           dynamoAPI
	patientsTable    string
	medicationsTable string
	logger           *logging.Logger
}

var _ RecordStore = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, patientsTable, medicationsTable string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("pharmacy: dynamodb client cannot be nil")
	}
	if patientsTable == "" || medicationsTable == "" {
		panic("pharmacy: table names cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:           client,
		patientsTable:    patientsTable,
		medicationsTable: medicationsTable,
		logger:           logger,
	}
}

func (s *DynamoStore) Patient(ctx context.Context, id string) (*PatientRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrPatientNotFound
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.patientsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, s.wrapAWSError("patient lookup", err)
	}
	if out.Item == nil {
		return nil, ErrPatientNotFound
	}

	var patient PatientRecord
	if err := attributevalue.UnmarshalMap(out.Item, &patient); err != nil {
		return nil, fmt.Errorf("pharmacy: decode patient record: %w", err)
	}
	return &patient, nil
}

func (s *DynamoStore) Medication(ctx context.Context, name string) (*MedicationRecord, error) {
	canonical := CanonicalName(name)
	if canonical == "" {
		return nil, ErrMedicationNotFound
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.medicationsTable),
		Key: map[string]types.AttributeValue{
			"name": &types.AttributeValueMemberS{Value: canonical},
		},
	})
	if err != nil {
		return nil, s.wrapAWSError("medication lookup", err)
	}
	if out.Item != nil {
		var med MedicationRecord
		if err := attributevalue.UnmarshalMap(out.Item, &med); err != nil {
			return nil, fmt.Errorf("pharmacy: decode medication record: %w", err)
		}
		return &med, nil
	}

	// No canonical match; fall back to an exact Hebrew-name scan. The catalog
	// is small, so a filtered scan is acceptable here.
	trimmed := strings.TrimSpace(name)
	scan, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.medicationsTable),
		FilterExpression: aws.String("nameHebrew = :hebrew"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hebrew": &types.AttributeValueMemberS{Value: trimmed},
		},
	})
	if err != nil {
		return nil, s.wrapAWSError("medication scan", err)
	}
	if len(scan.Items) == 0 {
		return nil, ErrMedicationNotFound
	}

	var med MedicationRecord
	if err := attributevalue.UnmarshalMap(scan.Items[0], &med); err != nil {
		return nil, fmt.Errorf("pharmacy: decode medication record: %w", err)
	}
	s.logger.Info("medication resolved by Hebrew name", "query", trimmed, "medication", med.Name)
	return &med, nil
}

func (s *DynamoStore) Medications(ctx context.Context) ([]MedicationRecord, error) {
	var (
		records  []MedicationRecord
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.medicationsTable),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, s.wrapAWSError("medication catalog scan", err)
		}
		var page []MedicationRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("pharmacy: decode medication catalog: %w", err)
		}
		records = append(records, page...)
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	if records == nil {
		return nil, errors.New("pharmacy: medication catalog is empty")
	}
	return records, nil
}

// wrapAWSError attaches the AWS error code when one is present, so operators
// can tell throttling and missing tables apart from plain transport failures.
func (s *DynamoStore) wrapAWSError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		s.logger.Error("dynamodb request failed",
			"op", op,
			"code", apiErr.ErrorCode(),
			"fault", apiErr.ErrorFault().String(),
		)
		return fmt.Errorf("pharmacy: %s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("pharmacy: %s: %w", op, err)
}

// HasPatient reports whether the given id belongs to a known patient.
func (s *DynamoStore) HasPatient(ctx context.Context, id string) bool {
	_, err := s.Patient(ctx, id)
	return err == nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/sibabalw/payments-app-sub003/internal/apierror"
	"github.com/sibabalw/payments-app-sub003/model"
)

func (d Datasource) CreateBusiness(ctx context.Context, business model.Business) (model.Business, error) {
	metaDataJSON, err := json.Marshal(business.MetaData)
	if err != nil {
		return model.Business{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	business.BusinessID = model.GenerateUUIDWithSuffix("bus")
	business.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO businesses (business_id, name, currency, meta_data)
		VALUES ($1, $2, $3, $4)
	`, business.BusinessID, business.Name, business.Currency, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return model.Business{}, apierror.NewAPIError(apierror.ErrConflict, "Business already exists", err)
		}
		return model.Business{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create business", err)
	}

	return business, nil
}

func (d Datasource) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	business := model.Business{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT business_id, name, currency, created_at
		FROM businesses
		WHERE business_id = $1
	`, id)

	err := row.Scan(&business.BusinessID, &business.Name, &business.Currency, &business.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Business not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve business", err)
	}

	return &business, nil
}

func (d Datasource) GetAllBusinesses(ctx context.Context, limit, offset int) ([]model.Business, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT business_id, name, currency, created_at
		FROM businesses
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve businesses", err)
	}
	defer rows.Close()

	businesses := []model.Business{}
	for rows.Next() {
		business := model.Business{}
		err = rows.Scan(&business.BusinessID, &business.Name, &business.Currency, &business.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan business data", err)
		}
		businesses = append(businesses, business)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over businesses", err)
	}

	return businesses, nil
}

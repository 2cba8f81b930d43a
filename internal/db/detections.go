package db

import (
	"context"
	"path"
	"strconv"

	"api-prodmon/internal/models"
)

// Detections persists and queries the barcode detection log.
type Detections struct {
	m        *Manager
	imageDir string
}

func NewDetections(m *Manager, imageDir string) *Detections {
	return &Detections{m: m, imageDir: imageDir}
}

// SaveBarcodeDetection inserts one accepted detection.
func (d *Detections) SaveBarcodeDetection(ctx context.Context, barcode, productName string, confidence float64, imageFilename string, bbox *models.BoundingBox) error {
	var imagePath *string
	var filename *string
	if imageFilename != "" {
		p := path.Join(d.imageDir, imageFilename)
		imagePath = &p
		filename = &imageFilename
	}

	var x1, y1, x2, y2 *int
	if bbox != nil {
		x1, y1, x2, y2 = &bbox[0], &bbox[1], &bbox[2], &bbox[3]
	}

	_, err := d.m.Exec(ctx,
		`INSERT INTO barcode_detection_log
		 (barcode, product_name, confidence, image_path, image_filename, bbox_x1, bbox_y1, bbox_x2, bbox_y2)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		barcode, productName, confidence, imagePath, filename, x1, y1, x2, y2,
	)
	return err
}

// Recent returns logged detections, newest first, optionally filtered by
// barcode value.
func (d *Detections) Recent(ctx context.Context, limit int, barcode string) ([]models.DetectionRecord, error) {
	query := `SELECT id, barcode, COALESCE(product_name, ''), COALESCE(confidence, 0),
	                 COALESCE(image_path, ''), COALESCE(image_filename, ''), detected_at,
	                 bbox_x1, bbox_y1, bbox_x2, bbox_y2
	          FROM barcode_detection_log WHERE 1=1`
	args := []any{}

	if barcode != "" {
		args = append(args, barcode)
		query += ` AND barcode = $` + strconv.Itoa(len(args))
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY detected_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := d.m.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DetectionRecord
	for rows.Next() {
		var rec models.DetectionRecord
		var x1, y1, x2, y2 *int
		if err := rows.Scan(&rec.ID, &rec.Barcode, &rec.ProductName, &rec.Confidence,
			&rec.ImagePath, &rec.ImageFilename, &rec.DetectedAt, &x1, &y1, &x2, &y2); err != nil {
			return nil, err
		}
		if x1 != nil && y1 != nil && x2 != nil && y2 != nil {
			rec.BBox = &models.BoundingBox{*x1, *y1, *x2, *y2}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

package email

import (
	"fmt"
	"html"
	"time"
)

// LowStockAlert is the content of a low-stock alert email
type LowStockAlert struct {
	ProductID         int64
	WarehouseID       int64
	AvailableQuantity int
	Threshold         int
	Severity          string
	RaisedAt          time.Time
}

// BackorderNotice is the content of a backorder email
type BackorderNotice struct {
	ProductID         int64
	WarehouseID       int64
	RequestedQuantity int
	AvailableQuantity int
	RaisedAt          time.Time
}

func severityColor(severity string) string {
	if severity == "CRITICAL" {
		return "#c0392b"
	}
	return "#e67e22"
}

// BuildLowStockAlertBody builds the HTML body for a low-stock alert email
func BuildLowStockAlertBody(alert LowStockAlert) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: %s; padding: 20px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">%s: stock running low</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<table style="width: 100%%; border-collapse: collapse;">
			<tr><td style="padding: 8px; color: #666;">Product</td><td style="padding: 8px; font-family: monospace;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Warehouse</td><td style="padding: 8px; font-family: monospace;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Available</td><td style="padding: 8px; font-weight: bold;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Threshold</td><td style="padding: 8px;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Raised at</td><td style="padding: 8px;">%s</td></tr>
		</table>

		<p style="margin-bottom: 0; font-size: 14px; color: #666;">Please schedule a replenishment for this location.</p>
	</div>
</body>
</html>`,
		severityColor(alert.Severity),
		html.EscapeString(alert.Severity),
		alert.ProductID,
		alert.WarehouseID,
		alert.AvailableQuantity,
		alert.Threshold,
		alert.RaisedAt.UTC().Format(time.RFC1123),
	)
}

// BuildBackorderNoticeBody builds the HTML body for a backorder email
func BuildBackorderNoticeBody(notice BackorderNotice) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #34495e; padding: 20px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 22px;">Reservation rejected: backorder</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<table style="width: 100%%; border-collapse: collapse;">
			<tr><td style="padding: 8px; color: #666;">Product</td><td style="padding: 8px; font-family: monospace;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Warehouse</td><td style="padding: 8px; font-family: monospace;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Requested</td><td style="padding: 8px; font-weight: bold;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Available</td><td style="padding: 8px;">%d</td></tr>
			<tr><td style="padding: 8px; color: #666;">Rejected at</td><td style="padding: 8px;">%s</td></tr>
		</table>
	</div>
</body>
</html>`,
		notice.ProductID,
		notice.WarehouseID,
		notice.RequestedQuantity,
		notice.AvailableQuantity,
		notice.RaisedAt.UTC().Format(time.RFC1123),
	)
}

package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendLowStockAlert mails a low-stock alert to the operations recipients
func (s *Service) SendLowStockAlert(to []string, alert LowStockAlert) error {
	subject := fmt.Sprintf("[%s] Low stock: product %d in warehouse %d (%d left)",
		alert.Severity, alert.ProductID, alert.WarehouseID, alert.AvailableQuantity)
	return s.send(to, subject, BuildLowStockAlertBody(alert))
}

// SendBackorderNotice mails a rejected reservation to the operations recipients
func (s *Service) SendBackorderNotice(to []string, notice BackorderNotice) error {
	subject := fmt.Sprintf("[BACKORDER] Product %d in warehouse %d: %d requested, %d available",
		notice.ProductID, notice.WarehouseID, notice.RequestedQuantity, notice.AvailableQuantity)
	return s.send(to, subject, BuildBackorderNoticeBody(notice))
}

func (s *Service) send(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, strings.Join(to, ", "), subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, to, []byte(msg))
}

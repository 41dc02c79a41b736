// Package intake извлекает платёжные данные из подтверждения продажи.
package intake

import "strings"

// Метки строк. Сравнение регистронезависимое, допускается и русский,
// и английский вариант.
var (
	payoutLabels = []string{"выплата:", "payout:"}
	txLabels     = []string{"tx:", "hash:", "хеш:"}
)

// TxInfo — разобранное подтверждение: реквизиты выплаты (обязательны),
// ссылка на транзакцию и идентификатор приложенного фото (опциональны).
type TxInfo struct {
	Payout    string
	Reference string
	PhotoID   string
}

// Extract разбирает текст подтверждения продажи. Возвращает ok=false, если
// не найдена строка с реквизитами выплаты — без неё заявка не создаётся.
// Ссылка на транзакцию берётся из помеченной строки; если сообщение состоит
// из единственной непомеченной строки, она считается ссылкой.
func Extract(text string) (TxInfo, bool) {
	var info TxInfo

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var unlabeled []string
	for _, line := range lines {
		if v, ok := labeled(line, payoutLabels); ok {
			if info.Payout == "" && v != "" {
				info.Payout = v
			}
			continue
		}
		if v, ok := labeled(line, txLabels); ok {
			if info.Reference == "" && v != "" {
				info.Reference = v
			}
			continue
		}
		unlabeled = append(unlabeled, line)
	}

	if info.Payout == "" {
		return TxInfo{}, false
	}
	if info.Reference == "" && len(unlabeled) == 1 {
		info.Reference = unlabeled[0]
	}
	return info, true
}

// Encode собирает каноническую строку tx_info для записи в заявку.
func (t TxInfo) Encode() string {
	var parts []string
	if t.Reference != "" {
		parts = append(parts, "tx: "+t.Reference)
	}
	parts = append(parts, "выплата: "+t.Payout)
	if t.PhotoID != "" {
		parts = append(parts, "photo:"+t.PhotoID)
	}
	return strings.Join(parts, "\n")
}

func labeled(line string, labels []string) (string, bool) {
	lower := strings.ToLower(line)
	for _, l := range labels {
		if strings.HasPrefix(lower, l) {
			return strings.TrimSpace(line[len(l):]), true
		}
	}
	return "", false
}

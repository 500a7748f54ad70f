package decision

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// templates builds the per-level message bundle. Unknown levels fall back to
// the level 1 (cordial reminder) bundle.
func templates(name string, dpd int, amount decimal.Decimal, level int, minPartial decimal.Decimal) Templates {
	amountTxt := "$" + FormatMXN(amount)
	minTxt := "$" + FormatMXN(minPartial)

	switch level {
	case 2: // firme: 72h, intereses, suspensión
		return Templates{
			SMS: fmt.Sprintf("%s, %d días de atraso por %s. Hay intereses activos. Define pago hoy o fecha ≤72h.",
				name, dpd, amountTxt),
			WhatsApp: fmt.Sprintf("%s, saldo %s, %d días de atraso. Intereses y riesgo de suspensión. ¿Pagas hoy o fecha ≤72h?",
				name, amountTxt, dpd),
			EmailSubject: fmt.Sprintf("Regulariza tu saldo en 72 horas — %s", amountTxt),
			EmailBody: fmt.Sprintf("Hola %s,\n\n"+
				"Tu cuenta presenta %d días de atraso por %s. "+
				"Se generan intereses y podrías tener suspensión de beneficios/servicios. "+
				"Define pago hoy o una fecha dentro de 72 horas.\n\n"+
				"Quedamos atentos.", name, dpd, amountTxt),
			CallOpening: fmt.Sprintf("%s, soy Sofía. Saldo %s, %d días de atraso. "+
				"Intereses activos y posible suspensión. ¿Pagas hoy o defines fecha ≤72h? ¿Cuál confirmas?",
				name, amountTxt, dpd),
		}
	case 3: // muy firme: posible jurídico, abono mínimo hoy
		return Templates{
			SMS: fmt.Sprintf("%s, %d días de atraso por %s. Exigimos regularización hoy. Abono mínimo %s o acuerdo inmediato.",
				name, dpd, amountTxt, minTxt),
			WhatsApp: fmt.Sprintf("%s, saldo %s con %d días de atraso. Exigimos abono hoy de %s o fecha inamovible. Sin acuerdo, escalaremos conforme contrato.",
				name, amountTxt, dpd, minTxt),
			EmailSubject: fmt.Sprintf("Acción requerida hoy — %s", amountTxt),
			EmailBody: fmt.Sprintf("Hola %s,\n\n"+
				"Tu saldo (%s) suma %d días de atraso. "+
				"Se requiere regularización inmediata. Exigimos un abono hoy de %s o acuerdo firme. "+
				"De no recibir confirmación, el caso podría escalarse conforme contrato y normatividad.\n",
				name, amountTxt, dpd, minTxt),
			CallOpening: fmt.Sprintf("%s, soy Sofía. Saldo %s, %d días de atraso. "+
				"Exigimos regularización hoy. Mínimo %s ahora o fecha inamovible. ¿Cómo procedemos?",
				name, amountTxt, dpd, minTxt),
		}
	default: // cordial
		return Templates{
			SMS: fmt.Sprintf("%s, tienes %d día(s) de atraso por %s. ¿Puedes regularizar hoy? Te apoyamos por este medio.",
				name, dpd, amountTxt),
			WhatsApp: fmt.Sprintf("Hola %s, recordatorio amable: saldo %s, %d día(s) de atraso. ¿Pagas hoy o agendamos fecha?",
				name, amountTxt, dpd),
			EmailSubject: fmt.Sprintf("Recordatorio de pago — %s", amountTxt),
			EmailBody: fmt.Sprintf("Hola %s,\n\n"+
				"Detectamos %d día(s) de atraso por %s. "+
				"Para evitar contratiempos, te invitamos a ponerte al corriente hoy. "+
				"Si requieres apoyo, responde este correo.\n\n"+
				"Saludos.", name, dpd, amountTxt),
			CallOpening: fmt.Sprintf("%s, soy Sofía. Tu saldo es %s con %d día(s) de atraso. "+
				"¿Eres %s? (Queremos ayudarte a regularizar hoy).",
				name, amountTxt, dpd, name),
		}
	}
}

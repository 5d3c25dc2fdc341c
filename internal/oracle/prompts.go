package oracle

import "fmt"

const systemPrompt = `You write read-only SQL against a virtual schema. The tables you see may live in different databases; the query engine takes care of that. Reply with SQL only.`

func planPrompt(schemaText, question string) string {
	return fmt.Sprintf(`You are planning a query before anyone writes SQL.

Work out:
- which column holds each value the question filters on (for example 'Laptop' is a product name, 'Electronics' a category name)
- the smallest set of tables that covers both the requested data and the filters
- the join keys between those tables, taken from RELATIONS and FOREIGN KEY lines

Schema:
%s

Question:
%s

Plan:`, schemaText, question)
}

func draftPrompt(schemaText, plan, question string) string {
	planBlock := ""
	if plan != "" {
		planBlock = fmt.Sprintf("\nPlan:\n%s\n", plan)
	}

	return fmt.Sprintf(`Write one SELECT statement that answers the question.

Requirements:
- Return the bare statement. No markdown fences, no commentary.
- Use table and column names exactly as written in the schema. Do not guess names that are not there.
- Qualify every column with its table name or alias once more than one table is involved.
- Do not quote identifiers with backticks.
- Match free-text values with LIKE '%%value%%' rather than =.
- Stick to portable SQL that SQLite, PostgreSQL and MySQL all accept.

Schema:
%s
%s
Question:
%s

SQL:`, schemaText, planBlock, question)
}

func repairPrompt(schemaText, badSQL, errText string) string {
	return fmt.Sprintf(`This query failed. Return a corrected statement and nothing else.

Typical causes:
- "no such column" or "unknown column": a column name was invented. Look it up in the schema.
- "ambiguous column name": qualify the column with its table alias.
- "unknown virtual table": only tables listed in the schema exist.

Error:
%s

Failed SQL:
%s

Schema:
%s

Corrected SQL:`, errText, badSQL, schemaText)
}

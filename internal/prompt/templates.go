package prompt

const structuredTemplate = `From the 10-K filing information that is passed in to you, extract the following information: Revenue (product wise if applicable), Net Income (product wise if applicable), Effective Tax Rate, Deferred Tax Assets, Deferred Tax Liabilities, Foreign Income Percentage, and any other relevant financial information.

Answer with ONLY a JSON object keyed by year. Do not add any text before or after the JSON.
The output is parsed once with a strict JSON parser, so it must be valid JSON: double-quoted keys and strings, commas between members, no trailing commas, no comments.

Example JSON (sub-fields may differ, but the units must be the same (billions), convert if needed):
{{.Example}}

The main fields ({{.Fields}}) must be present for every year. Sub-fields may vary; for example the sources of revenue may differ between companies or between years of the same company. Name the source of revenue in the sub-fields.
Give profit or loss with a positive or negative sign in front of the number.

Here are the reports for {{.Company}}:
{{.Text}}
`

const narrativeTemplate = `You are an analyst examining {{.Company}}'s 10-K filings. Extract the following insights:
1. Revenue and Net Income trends/growth percentage.
2. Total Debt.
3. Gross Margin and Percentage.
4. Capital Expenditure.
5. Effective Tax Rate and Deferred Tax Assets/Liabilities.
6. Number of Shares Outstanding.
7. Foreign Income Percentage.
8. Share Buy-Back.
Then give two more custom insights which you deem important.

Make sure that the insights are for this specific company. Refer to the company as "the company" when giving insights.

Here are the reports:
{{.Text}}

Provide the insights in a structured format.
`

const summaryTemplate = `Analyze the following JSON data and summarize the total revenue and net income:

{{.Text}}

Provide the total revenue, total net income, effective tax rate, and foreign income percentage in the format:
Revenue: [value]
Net Income: [value]
Effective Tax Rate: [value]
Foreign Income Percentage: [value]`

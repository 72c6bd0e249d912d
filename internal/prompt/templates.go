package prompt

const defaultPreamble = `You are a language analysis expert reviewing short journal entries. For every item give three concrete, encouraging observations grounded in the entry.`

const jsonInstructions = `Reply with one JSON object per entry, in the same order as the entries. Each object must contain exactly these keys: %s. Every value is a string.
`

const keyedInstructions = `Each entry starts with a marker like [#3]. Add a "record" key holding that number to the entry's object.
`

const tableInstructions = `Reply for each entry with a markdown table: the header row %s, the separator row, then one data row for the entry.
`

const separatorInstructions = `Separate consecutive answers with a line containing only:
%s
Return only the answers, no other text.
`
